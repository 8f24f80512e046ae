package ocr

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Preprocessor transforms a page image before recognition.
type Preprocessor interface {
	Process(img image.Image) (image.Image, error)
}

// PreprocessorFunc adapts a function to Preprocessor.
type PreprocessorFunc func(img image.Image) (image.Image, error)

func (f PreprocessorFunc) Process(img image.Image) (image.Image, error) { return f(img) }

// Grayscale drops colour information.
func Grayscale() Preprocessor {
	return PreprocessorFunc(func(img image.Image) (image.Image, error) {
		return imaging.Grayscale(img), nil
	})
}

// Denoise applies a gaussian blur of the given sigma.
func Denoise(sigma float64) Preprocessor {
	return PreprocessorFunc(func(img image.Image) (image.Image, error) {
		return imaging.Blur(img, sigma), nil
	})
}

// Contrast changes contrast by percentage in [-100, 100].
func Contrast(percentage float64) Preprocessor {
	return PreprocessorFunc(func(img image.Image) (image.Image, error) {
		return imaging.AdjustContrast(img, percentage), nil
	})
}

func Sharpen(sigma float64) Preprocessor {
	return PreprocessorFunc(func(img image.Image) (image.Image, error) {
		return imaging.Sharpen(img, sigma), nil
	})
}

// Binarize maps every pixel to black or white around threshold.
func Binarize(threshold uint8) Preprocessor {
	return PreprocessorFunc(func(img image.Image) (image.Image, error) {
		gray := imaging.Grayscale(img)
		bounds := gray.Bounds()
		out := image.NewGray(bounds)
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				v := color.GrayModel.Convert(gray.At(x, y)).(color.Gray).Y
				if v > threshold {
					out.SetGray(x, y, color.Gray{Y: 255})
				} else {
					out.SetGray(x, y, color.Gray{Y: 0})
				}
			}
		}
		return out, nil
	})
}

// DefaultPipeline is the preprocessing applied to scanned pages.
func DefaultPipeline() []Preprocessor {
	return []Preprocessor{
		Grayscale(),
		Denoise(0.5),
		Contrast(20),
		Sharpen(0.5),
	}
}

// ApplyPipeline runs img through every preprocessor in order.
func ApplyPipeline(img image.Image, pipeline []Preprocessor) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}
	result := img
	for _, p := range pipeline {
		var err error
		result, err = p.Process(result)
		if err != nil {
			return nil, fmt.Errorf("preprocessing failed: %w", err)
		}
		if result == nil {
			return nil, fmt.Errorf("preprocessor returned nil image")
		}
	}
	return result, nil
}
