package deploy

import "strings"

// ParseTags parses a "key=value,key=value" tag list. Each pair is split on
// its first "="; a pair with no "=" becomes a tag with an empty value. Empty
// pairs are skipped, and surrounding whitespace is trimmed.
func ParseTags(spec string) []Tag {
	var tags []Tag
	for pair := range strings.SplitSeq(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		tags = append(tags, Tag{
			Key:   strings.TrimSpace(key),
			Value: strings.TrimSpace(value),
		})
	}
	return tags
}
