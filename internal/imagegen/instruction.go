package imagegen

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/rcwells1879/veilpix-sub000/internal/domain"
)

// BuildInstruction renders the provider-facing instruction text for an
// intent. Providers receive plain text; the per-kind framing lives here
// so every adapter sends consistent prompts.
func BuildInstruction(intent domain.GenerationIntent) string {
	instruction := strings.TrimSpace(intent.Instruction)
	parts := []string{}
	switch intent.Kind {
	case domain.KindEdit:
		if intent.FocalX != nil && intent.FocalY != nil {
			parts = append(parts, fmt.Sprintf("Apply a localized edit centered at (%.2f, %.2f) in the image:", *intent.FocalX, *intent.FocalY))
		} else {
			parts = append(parts, "Apply a localized edit to the image:")
		}
		parts = append(parts, instruction)
		parts = append(parts, "Leave the rest of the image unchanged.")
	case domain.KindFilter:
		style := cases.Title(language.Und).String(instruction)
		parts = append(parts, fmt.Sprintf("Apply the %s style to the entire image.", style))
		parts = append(parts, "Preserve the original composition and subjects.")
	case domain.KindAdjust:
		parts = append(parts, "Adjust the overall look of the image:", instruction)
		parts = append(parts, "Do not add, remove, or move any objects.")
	case domain.KindCombine:
		parts = append(parts, fmt.Sprintf("Combine the %d provided images into a single coherent image.", len(intent.Sources)))
		parts = append(parts, instruction)
	default:
		parts = append(parts, instruction)
	}
	if aspect := strings.TrimSpace(intent.AspectRatio); aspect != "" {
		parts = append(parts, "Compose the result for a "+aspect+" aspect ratio.")
	}
	return strings.Join(parts, " ")
}
