package ingest

import gosseract "github.com/otiai10/gosseract/v2"

// ocrImage extracts text from path, best-effort: a Tesseract failure yields
// an empty string rather than failing the frame (spec §4.10 step 2).
func ocrImage(path string) string {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetImage(path); err != nil {
		return ""
	}
	text, err := client.Text()
	if err != nil {
		return ""
	}
	return text
}
