package layouts

import (
	"fmt"
	"strings"
)

// text returns the first non-empty string under any of keys.
func text(data map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := data[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64, bool:
			return fmt.Sprint(v)
		}
	}
	return ""
}

// items flattens a list under the first present key. Elements may be plain
// strings or objects carrying a heading and a description.
func items(data map[string]any, keys ...string) []string {
	for _, k := range keys {
		raw, ok := data[k].([]any)
		if !ok {
			continue
		}
		out := make([]string, 0, len(raw))
		for _, item := range raw {
			switch v := item.(type) {
			case string:
				if s := strings.TrimSpace(v); s != "" {
					out = append(out, s)
				}
			case map[string]any:
				head := text(v, "title", "heading", "name", "label")
				desc := text(v, "description", "text", "content", "body")
				switch {
				case head != "" && desc != "":
					out = append(out, head+": "+desc)
				case head != "":
					out = append(out, head)
				case desc != "":
					out = append(out, desc)
				}
			}
		}
		return out
	}
	return nil
}

// imageURL accepts a bare URL field or an image object with a url.
func imageURL(data map[string]any) string {
	if s := text(data, "imageUrl", "image_url"); s != "" {
		return s
	}
	switch img := data["image"].(type) {
	case string:
		return strings.TrimSpace(img)
	case map[string]any:
		return text(img, "url", "__image_url__", "src")
	}
	return ""
}
