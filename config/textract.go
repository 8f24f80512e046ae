package config

import "os"

// TextractConfig configures the AWS Textract OCR engine.
type TextractConfig struct {
	Region        string  `yaml:"region"`
	MinConfidence float32 `yaml:"min_confidence"`
	AccessKey     string  `yaml:"-"`
	SecretKey     string  `yaml:"-"`
}

func applyTextractEnv(c *TextractConfig) {
	setString(&c.Region, "AWS_REGION")
	c.AccessKey = os.Getenv("AWS_ACCESS_KEY")
	c.SecretKey = os.Getenv("AWS_SECRET_KEY")
}
