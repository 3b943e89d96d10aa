package audio

import "strings"

// LooksLikeMPEG reports whether data starts with an ID3 tag or an MPEG
// frame sync, the two shapes streamed speech audio arrives in.
func LooksLikeMPEG(data []byte) bool {
	if len(data) >= 3 && data[0] == 'I' && data[1] == 'D' && data[2] == '3' {
		return true
	}
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

// ExtensionForMIME maps the audio MIME types seen on the wire to file
// extensions. Unknown types return "".
func ExtensionForMIME(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	case "audio/webm":
		return ".webm"
	}
	return ""
}
