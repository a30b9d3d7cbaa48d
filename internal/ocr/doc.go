// Package ocr provides the Tesseract-backed text-region detector.
//
// This package wraps the Tesseract OCR engine (via gosseract/v2). TextDetector
// implements the same Detect contract as the pure-Go detectors in package
// detection, so the pipeline can use either as its text source.
//
// # Prerequisites
//
// Tesseract must be installed on the system:
//   - Ubuntu/Debian: apt-get install tesseract-ocr
//   - macOS: brew install tesseract
//   - Windows: Download from https://github.com/UB-Mannheim/tesseract/wiki
//
// Language data files are required for each language:
//   - Ubuntu/Debian: apt-get install tesseract-ocr-eng (for English)
//   - Other languages: tesseract-ocr-<lang> packages
//
// Config.TessdataPrefix points Tesseract at a non-standard data directory.
//
// # Granularity
//
// Config.Level selects what one region is:
//
//   - word: a single word, the finest granularity
//   - line: a text line, the default; a button caption or menu entry is
//     usually one line
//   - block: a paragraph-like block of lines
//
// Page segmentation uses sparse-text mode, since screen captures rarely hold
// running paragraphs.
//
// # Error Handling
//
// Detect returns errors for:
//   - Unsupported language codes or missing language data
//   - Tesseract initialization failures
//   - Invalid configuration (*screen.ConfigError)
//
// The pipeline wraps any of these in *screen.UpstreamDetectionError.
package ocr
