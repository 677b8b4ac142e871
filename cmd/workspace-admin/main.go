// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

// workspace-admin is the operator tool for a workspace deployment. It
// inspects backend health and reads or updates the dynamic configuration
// stored in the database.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zeebo/errs"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"kbase.us/workspace/blobstore"
	"kbase.us/workspace/blobstore/gridfs"
	"kbase.us/workspace/blobstore/mem"
	"kbase.us/workspace/blobstore/s3"
	"kbase.us/workspace/wsdb"
)

var (
	rootCmd = &cobra.Command{
		Use:   "workspace-admin",
		Short: "Workspace deployment administration",
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Report database and blob backend health",
		RunE:  cmdStatus,
	}
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Dynamic configuration",
	}
	configGetCmd = &cobra.Command{
		Use:   "get",
		Short: "Print the stored dynamic configuration",
		RunE:  cmdConfigGet,
	}
	configSetCmd = &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Update one dynamic configuration key",
		Args:  cobra.ExactArgs(2),
		RunE:  cmdConfigSet,
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("database", "mongodb://localhost:27017", "document store connection string")
	pf.String("db-name", "workspace", "document store database name")
	pf.String("blobstore", "gridfs", "blob backend: mem, gridfs or s3")
	pf.String("s3.endpoint", "", "s3 endpoint host:port")
	pf.String("s3.access-key", "", "s3 access key")
	pf.String("s3.secret-key", "", "s3 secret key")
	pf.String("s3.bucket", "workspace", "s3 bucket name")
	pf.String("s3.region", "", "s3 region")
	pf.Bool("s3.secure", true, "use TLS for s3")

	cobra.CheckErr(viper.BindPFlags(pf))
	viper.SetEnvPrefix("WORKSPACE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	configCmd.AddCommand(configGetCmd, configSetCmd)
	rootCmd.AddCommand(statusCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openDB(ctx context.Context, log *zap.Logger) (*wsdb.DB, error) {
	blobs, err := openBlobs(ctx)
	if err != nil {
		return nil, err
	}
	return wsdb.Open(ctx, log, viper.GetString("database"), blobs, wsdb.Config{
		ApplicationName: "workspace-admin",
		Database:        viper.GetString("db-name"),
	})
}

func openBlobs(ctx context.Context) (blobstore.Store, error) {
	switch backend := viper.GetString("blobstore"); backend {
	case "mem":
		return mem.New(), nil
	case "gridfs":
		opts := options.Client().ApplyURI(viper.GetString("database"))
		client, err := mongo.Connect(ctx, opts)
		if err != nil {
			return nil, blobstore.ErrCommunication.Wrap(err)
		}
		return gridfs.New(client.Database(viper.GetString("db-name")))
	case "s3":
		return s3.New(ctx, s3.Config{
			Endpoint:  viper.GetString("s3.endpoint"),
			AccessKey: viper.GetString("s3.access-key"),
			SecretKey: viper.GetString("s3.secret-key"),
			Bucket:    viper.GetString("s3.bucket"),
			Region:    viper.GetString("s3.region"),
			Secure:    viper.GetBool("s3.secure"),
		})
	default:
		return nil, errs.New("unknown blobstore backend: %s", backend)
	}
}

func cmdStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := openDB(ctx, log)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(ctx) }()

	status, err := db.BlobStore().Status(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("blobstore: backend=%s ok=%v", status.Backend, status.OK)
	if status.Info != "" {
		fmt.Printf(" info=%q", status.Info)
	}
	fmt.Println()

	// a configuration read exercises the document store end to end
	cfg, err := db.GetConfig(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("database: ok %s=%d\n", wsdb.KeyBackendScaling, cfg.BackendScalingOrDefault())
	return nil
}

func cmdConfigGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := openDB(ctx, log)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(ctx) }()

	cfg, err := db.GetConfig(ctx)
	if err != nil {
		return err
	}
	stored := cfg.Map()
	if len(stored) == 0 {
		fmt.Println("no dynamic configuration stored")
		return nil
	}
	for key, value := range stored {
		fmt.Printf("%s=%v\n", key, value)
	}
	return nil
}

func cmdConfigSet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	update, err := wsdb.DynamicConfigFromMap(map[string]interface{}{
		args[0]: parseScalar(args[1]),
	})
	if err != nil {
		return err
	}

	db, err := openDB(ctx, log)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(ctx) }()

	err = db.SetConfig(ctx, wsdb.DynamicConfigUpdate{
		BackendScaling: update.BackendScaling,
	}, true)
	if err != nil {
		return err
	}
	log.Info("configuration updated", zap.String("key", args[0]), zap.String("value", args[1]))
	return nil
}

// parseScalar keeps integer-looking arguments integers so validation sees
// the same shapes a bson decode produces.
func parseScalar(s string) interface{} {
	var n int64
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil {
		return n
	}
	return s
}
