package chunker

import "regexp"

// matches forensic extraction paths, whatsapp "<attached: ...>" markers and
// bare whatsapp media names
var imagePattern = regexp.MustCompile(`(?i)EXTRACTION_FFS\.zip/([^\s"'<>]+?\.(?:jpe?g|png|gif|webp|mp4))|<attached:\s*([^>\n]+?\.(?:jpe?g|png|gif|webp|mp4))>|\b((?:IMG|VID|STK)-\d{8}-WA\d{4}\.(?:jpe?g|png|gif|webp|mp4))\b`)

// ExtractImageRefs lists referenced media paths in order of first
// appearance. The text itself is left untouched.
func ExtractImageRefs(text string) []string {
	matches := imagePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	refs := make([]string, 0, len(matches))
	for _, m := range matches {
		ref := m[0]
		for _, group := range m[1:] {
			if group != "" {
				ref = group
				break
			}
		}
		if seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	return refs
}
