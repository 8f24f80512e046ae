package config

import "os"

// S3Config holds the staging bucket settings for the s3 backend.
type S3Config struct {
	BucketName string `yaml:"bucket"`
	Region     string `yaml:"region"`
	Endpoint   string `yaml:"endpoint"`
	Prefix     string `yaml:"prefix"`
	AccessKey  string `yaml:"-"`
	SecretKey  string `yaml:"-"`
}

func applyS3Env(c *S3Config) {
	setString(&c.BucketName, "AWS_S3_BUCKET_NAME")
	setString(&c.Region, "AWS_REGION")
	setString(&c.Endpoint, "AWS_ENDPOINT")
	c.AccessKey = os.Getenv("AWS_ACCESS_KEY")
	c.SecretKey = os.Getenv("AWS_SECRET_KEY")
}
