package main

import (
	"log"
	"os"
	"strconv"

	"github.com/ayusman/gaitpose/internal/gaitlog"
)

// Environment variables selecting S3-compatible export storage. Without an
// endpoint, exports are written to the output directory.
const (
	envS3Endpoint  = "GAITPOSE_S3_ENDPOINT"
	envS3AccessKey = "GAITPOSE_S3_ACCESS_KEY"
	envS3SecretKey = "GAITPOSE_S3_SECRET_KEY"
	envS3Bucket    = "GAITPOSE_S3_BUCKET"
	envS3Prefix    = "GAITPOSE_S3_PREFIX"
	envS3Secure    = "GAITPOSE_S3_SECURE"
)

// objectConfigFromEnv reads the object store settings. ok is false when no
// endpoint is configured.
func objectConfigFromEnv() (cfg gaitlog.ObjectConfig, ok bool) {
	cfg = gaitlog.ObjectConfig{
		Endpoint:  os.Getenv(envS3Endpoint),
		AccessKey: os.Getenv(envS3AccessKey),
		SecretKey: os.Getenv(envS3SecretKey),
		Bucket:    os.Getenv(envS3Bucket),
		Prefix:    os.Getenv(envS3Prefix),
		Secure:    true,
	}
	if v := os.Getenv(envS3Secure); v != "" {
		if secure, err := strconv.ParseBool(v); err == nil {
			cfg.Secure = secure
		} else {
			log.Printf("Ignoring invalid %s=%q", envS3Secure, v)
		}
	}
	return cfg, cfg.Endpoint != ""
}

// sinkFromEnv returns an object store sink when one is configured and a
// directory sink on outDir otherwise.
func sinkFromEnv(outDir string) (gaitlog.Sink, error) {
	cfg, ok := objectConfigFromEnv()
	if !ok {
		return gaitlog.DirSink{Dir: outDir}, nil
	}

	sink, err := gaitlog.NewObjectSink(cfg)
	if err != nil {
		return nil, err
	}
	log.Printf("Exporting to bucket %s at %s", cfg.Bucket, cfg.Endpoint)
	return sink, nil
}
