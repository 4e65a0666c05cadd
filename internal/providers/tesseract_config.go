package providers

const TesseractName = "tesseract"

// TesseractConfig configures the local Tesseract recognizer.
type TesseractConfig struct {
	Languages   []string          // default: ["eng"]
	PageSegMode int               // 0 = Tesseract default
	Variables   map[string]string // passed to SetVariable
}
