package config

import "os"

// MinioConfig holds the staging bucket settings for the minio backend.
type MinioConfig struct {
	Endpoint   string `yaml:"endpoint"`
	BucketName string `yaml:"bucket"`
	Region     string `yaml:"region"`
	UseSSL     bool   `yaml:"use_ssl"`
	AccessKey  string `yaml:"-"`
	SecretKey  string `yaml:"-"`
}

func applyMinioEnv(c *MinioConfig) {
	setString(&c.Endpoint, "MINIO_ENDPOINT")
	setString(&c.BucketName, "MINIO_BUCKET_NAME")
	setString(&c.Region, "MINIO_REGION")
	if os.Getenv("MINIO_USE_SSL") == "true" {
		c.UseSSL = true
	}
	c.AccessKey = os.Getenv("MINIO_ACCESS_KEY")
	c.SecretKey = os.Getenv("MINIO_SECRET_KEY")
}
