//go:build tesseract

package main

// Links the in-process OCR engine selected by OCR_ENGINE=library.
import _ "github.com/practicos/internal/ocr/gosseract"
