package imgen

import "strings"

// styleHints maps a requested style to the prompt fragment appended
// before transmission. Unknown styles pass through as a literal hint so
// backends can still honor them.
var styleHints = map[string]string{
	"photorealistic": "photorealistic, highly detailed, natural lighting",
	"anime":          "anime style, vibrant colors, clean lines",
	"sketch":         "pencil sketch, hand-drawn, monochrome",
	"watercolor":     "watercolor painting, soft edges, pastel tones",
	"pixel-art":      "pixel art, 8-bit, retro game style",
	"logo":           "flat vector logo, minimal, clean design, centered on plain background",
}

// ComposePrompt sanitizes the prompt and appends the style hint when a
// style is requested.
func ComposePrompt(req *GenerationRequest) string {
	prompt := SanitizePrompt(req.Prompt)
	if req.Style == "" {
		return prompt
	}
	hint, ok := styleHints[strings.ToLower(req.Style)]
	if !ok {
		hint = strings.ToLower(req.Style) + " style"
	}
	return prompt + ", " + hint
}
