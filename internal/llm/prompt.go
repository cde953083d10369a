package llm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/MathiasSchindler/commonsimagedescription/internal/geo"
)

// describeContextLimit caps how many nearby places the vision prompt lists.
const describeContextLimit = 10

// locationContext joins the settlement name and country from a reverse
// geocode result, e.g. "Berlin, Germany". Empty when nothing resolved.
func locationContext(location *geo.GeocodeResult) string {
	if location == nil || location.Data == nil {
		return ""
	}
	addr := location.Data.Address

	var parts []string
	if city := addr.GetCity(); city != "" {
		parts = append(parts, city)
	}
	if addr.Country != "" {
		parts = append(parts, addr.Country)
	}
	return strings.Join(parts, ", ")
}

// locationHint builds the " in <place>" suffix for the filename prompt,
// preferring the settlement over the country.
func locationHint(location *geo.GeocodeResult) string {
	if location == nil || location.Data == nil {
		return ""
	}
	addr := location.Data.Address
	if city := addr.GetCity(); city != "" {
		return " in " + city
	}
	if addr.Country != "" {
		return " in " + addr.Country
	}
	return ""
}

// describePrompt builds the vision prompt. The base instruction asks for one
// integrated sentence; location and nearby-place context are appended when
// available so the model can name what it sees.
func describePrompt(locationCtx string, places []geo.WikidataPlace) string {
	var b strings.Builder
	b.WriteString("Describe what you see in this image in one clear sentence (maximum 25 words). ")
	b.WriteString("Your description should naturally include the main subject AND the location. ")

	if locationCtx != "" {
		fmt.Fprintf(&b, "This photo was taken in %s. ", locationCtx)
	}

	if len(places) > 0 {
		b.WriteString("\n\nBased on GPS coordinates, these specific places/structures are nearby (ordered by distance):\n")
		for i, place := range places {
			if i >= describeContextLimit {
				break
			}
			fmt.Fprintf(&b, "%d. %s", i+1, place.Label)
			if place.InstanceOf != "" {
				fmt.Fprintf(&b, " (%s)", place.InstanceOf)
			}
			if place.Description != "" {
				fmt.Fprintf(&b, " - %s", place.Description)
			}
			fmt.Fprintf(&b, " [%sm away]\n", strconv.FormatFloat(place.DistanceM, 'f', -1, 64))
		}
		b.WriteString("\nIMPORTANT: If you recognize any of these specific places in the image, ")
		b.WriteString("include its exact name in your description. For example: 'A Ryanair airplane at Terminal 2 of Berlin Brandenburg Airport' ")
		b.WriteString("rather than just 'A Ryanair airplane at an airport terminal'.\n")
	}

	b.WriteString("\n\nProvide a single integrated sentence that describes the subject and location together. ")
	b.WriteString("Do not split this into separate parts - make it one flowing sentence.")
	return b.String()
}

// translatePrompt instructs the model to output only the translation.
func translatePrompt(text, targetLanguage string) string {
	return fmt.Sprintf("Translate the following text from English to %s. "+
		"Only output the translation, nothing else. No interpretation, no explanation. "+
		"Your only output should be a faithful translation of the text I gave, "+
		"no other acknowledgement or talk.\n\n%s", targetLanguage, text)
}

// filenamePrompt asks for a short descriptive phrase suitable as a
// Wikimedia Commons filename base.
func filenamePrompt(description, hint string) string {
	prompt := fmt.Sprintf("Based on this image description: %q, "+
		"suggest a short, descriptive filename (3-6 words maximum) for Wikimedia Commons. "+
		"The filename should describe the main subject clearly and concisely. "+
		"Use only lowercase letters, spaces (not hyphens), and keep it simple. "+
		"Do not include the file extension or date. "+
		"Only output the filename words, nothing else.", description)
	if hint != "" {
		prompt += fmt.Sprintf(" The photo was taken%s.", hint)
	}
	return prompt
}

// trimContent strips surrounding whitespace from model output.
func trimContent(s string) string {
	return strings.TrimSpace(s)
}
