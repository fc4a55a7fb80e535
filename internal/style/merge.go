package style

import (
	"strings"

	twmerge "github.com/Oudwins/tailwind-merge-go"
)

// bgNonColor lists bg- utilities that do not set a background color.
var bgNonColor = map[string]bool{
	"bg-none": true, "bg-fixed": true, "bg-local": true, "bg-scroll": true,
	"bg-auto": true, "bg-cover": true, "bg-contain": true, "bg-repeat": true,
	"bg-no-repeat": true, "bg-repeat-x": true, "bg-repeat-y": true,
	"bg-repeat-round": true, "bg-repeat-space": true, "bg-center": true,
	"bg-top": true, "bg-bottom": true, "bg-left": true, "bg-right": true,
	"bg-left-top": true, "bg-left-bottom": true, "bg-right-top": true,
	"bg-right-bottom": true,
}

var bgNonColorPrefixes = []string{
	"bg-clip-", "bg-origin-", "bg-gradient-", "bg-linear-", "bg-radial-",
	"bg-conic-", "bg-blend-", "bg-opacity-", "bg-[url(", "bg-[length:",
	"bg-[position:", "bg-[image:",
}

// MergeClasses merges class lists with utility precedence: later classes win
// over conflicting earlier ones. Background color classes are stricter: per
// variant only the last bg color class survives, every earlier one is dropped
// before the merge.
func MergeClasses(lists ...string) string {
	var all []string
	for _, l := range lists {
		all = append(all, strings.Fields(l)...)
	}
	if len(all) == 0 {
		return ""
	}

	lastBg := make(map[string]int)
	for i, cls := range all {
		if variant, ok := bgColorVariant(cls); ok {
			lastBg[variant] = i
		}
	}
	kept := all[:0:0]
	for i, cls := range all {
		if variant, ok := bgColorVariant(cls); ok && lastBg[variant] != i {
			continue
		}
		kept = append(kept, cls)
	}
	return twmerge.Merge(strings.Join(kept, " "))
}

// bgColorVariant reports whether cls sets a background color and returns its
// variant prefix ("" for none, "hover:" and so on).
func bgColorVariant(cls string) (string, bool) {
	variant, base := splitVariant(cls)
	base = strings.TrimPrefix(base, "!")
	if !strings.HasPrefix(base, "bg-") {
		return "", false
	}
	if bgNonColor[base] {
		return "", false
	}
	for _, prefix := range bgNonColorPrefixes {
		if strings.HasPrefix(base, prefix) {
			return "", false
		}
	}
	return variant, true
}

// splitVariant splits "md:hover:bg-red-500" into "md:hover:" and
// "bg-red-500", ignoring colons inside arbitrary values.
func splitVariant(cls string) (string, string) {
	depth := 0
	last := -1
	for i, r := range cls {
		switch r {
		case '[', '(':
			depth++
		case ']', ')':
			depth--
		case ':':
			if depth == 0 {
				last = i
			}
		}
	}
	return cls[:last+1], cls[last+1:]
}

// ImageClass returns the background image class for a public path.
func ImageClass(publicPath string) string {
	return "bg-[url(" + customVal(publicPath) + ")]"
}

// StripImageClasses removes background image classes from a class list. When
// publicPath is non-empty only that image's class is removed.
func StripImageClasses(classes, publicPath string) string {
	var kept []string
	target := ""
	if publicPath != "" {
		target = ImageClass(publicPath)
	}
	for _, cls := range strings.Fields(classes) {
		_, base := splitVariant(cls)
		if strings.HasPrefix(base, "bg-[url(") && (target == "" || base == target) {
			continue
		}
		kept = append(kept, cls)
	}
	return strings.Join(kept, " ")
}
