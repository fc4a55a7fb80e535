package style

import (
	"strconv"
	"strings"
)

// formatter converts a CSS value to a utility class, or "" when the value
// has no utility form.
type formatter func(val string) string

// spacingScale maps a rem multiple of 0.25 to its Tailwind spacing key.
var spacingScale = map[float64]string{
	0: "0", 0.5: "0.5", 1: "1", 1.5: "1.5", 2: "2", 2.5: "2.5", 3: "3", 3.5: "3.5",
	4: "4", 5: "5", 6: "6", 7: "7", 8: "8", 9: "9", 10: "10", 11: "11", 12: "12",
	14: "14", 16: "16", 20: "20", 24: "24", 28: "28", 32: "32", 36: "36", 40: "40",
	44: "44", 48: "48", 52: "52", 56: "56", 60: "60", 64: "64", 72: "72", 80: "80", 96: "96",
}

var fractions = map[string]string{
	"100%": "full", "50%": "1/2", "33.333333%": "1/3", "66.666667%": "2/3",
	"25%": "1/4", "75%": "3/4", "20%": "1/5", "40%": "2/5", "60%": "3/5", "80%": "4/5",
}

// customVal makes a value safe inside an arbitrary-value bracket.
func customVal(val string) string {
	fields := strings.Fields(val)
	return strings.Join(fields, "_")
}

func arbitrary(prefix, val string) string {
	return prefix + "-[" + customVal(val) + "]"
}

// scaleKey converts a rem or px length to a spacing scale key.
func scaleKey(val string) (string, bool) {
	var units float64
	switch {
	case strings.HasSuffix(val, "rem"):
		n, err := strconv.ParseFloat(strings.TrimSuffix(val, "rem"), 64)
		if err != nil {
			return "", false
		}
		units = n * 4
	case strings.HasSuffix(val, "px"):
		n, err := strconv.ParseFloat(strings.TrimSuffix(val, "px"), 64)
		if err != nil {
			return "", false
		}
		if n == 1 {
			return "px", true
		}
		units = n / 4
	case val == "0":
		units = 0
	default:
		return "", false
	}
	key, ok := spacingScale[units]
	return key, ok
}

// spacing builds the formatter for padding/margin/gap/inset style utilities.
func spacing(prefix string, allowNegative, allowAuto bool) formatter {
	return func(val string) string {
		if allowAuto && val == "auto" {
			return prefix + "-auto"
		}
		neg := ""
		v := val
		if allowNegative && strings.HasPrefix(v, "-") {
			neg = "-"
			v = v[1:]
		}
		if key, ok := scaleKey(v); ok {
			return neg + prefix + "-" + key
		}
		if frac, ok := fractions[v]; ok && prefix != "p" && !strings.HasPrefix(prefix, "p") {
			return neg + prefix + "-" + frac
		}
		return neg + arbitrary(prefix, v)
	}
}

// size builds the formatter for width/height style utilities.
func size(prefix string, screen string) formatter {
	keywords := map[string]string{
		"auto":        "auto",
		"min-content": "min",
		"max-content": "max",
		"fit-content": "fit",
	}
	return func(val string) string {
		if kw, ok := keywords[val]; ok {
			return prefix + "-" + kw
		}
		if screen != "" && val == screen {
			return prefix + "-screen"
		}
		if key, ok := scaleKey(val); ok {
			return prefix + "-" + key
		}
		if frac, ok := fractions[val]; ok {
			return prefix + "-" + frac
		}
		return arbitrary(prefix, val)
	}
}

func keyword(table map[string]string) formatter {
	return func(val string) string {
		return table[val]
	}
}

func colorFormatter(prefix string) formatter {
	return func(val string) string {
		switch val {
		case "transparent":
			return prefix + "-transparent"
		case "currentColor", "currentcolor":
			return prefix + "-current"
		case "inherit":
			return prefix + "-inherit"
		}
		if isColor(val) {
			return arbitrary(prefix, val)
		}
		return ""
	}
}

func withArbitrary(table map[string]string, prefix string) formatter {
	return func(val string) string {
		if cls, ok := table[val]; ok {
			return cls
		}
		return arbitrary(prefix, val)
	}
}

var fontSizes = map[string]string{
	"0.75rem": "text-xs", "12px": "text-xs",
	"0.875rem": "text-sm", "14px": "text-sm",
	"1rem": "text-base", "16px": "text-base",
	"1.125rem": "text-lg", "18px": "text-lg",
	"1.25rem": "text-xl", "20px": "text-xl",
	"1.5rem": "text-2xl", "24px": "text-2xl",
	"1.875rem": "text-3xl", "30px": "text-3xl",
	"2.25rem": "text-4xl", "36px": "text-4xl",
	"3rem": "text-5xl", "48px": "text-5xl",
	"3.75rem": "text-6xl", "60px": "text-6xl",
	"4.5rem": "text-7xl", "72px": "text-7xl",
	"6rem": "text-8xl", "96px": "text-8xl",
	"8rem": "text-9xl", "128px": "text-9xl",
}

var borderRadii = map[string]string{
	"0": "rounded-none", "0px": "rounded-none",
	"0.125rem": "rounded-sm", "2px": "rounded-sm",
	"0.25rem": "rounded", "4px": "rounded",
	"0.375rem": "rounded-md", "6px": "rounded-md",
	"0.5rem": "rounded-lg", "8px": "rounded-lg",
	"0.75rem": "rounded-xl", "12px": "rounded-xl",
	"1rem": "rounded-2xl", "16px": "rounded-2xl",
	"1.5rem": "rounded-3xl", "24px": "rounded-3xl",
	"9999px": "rounded-full", "50%": "rounded-full",
}

func opacity(prefix string) formatter {
	return func(val string) string {
		n, err := strconv.ParseFloat(strings.TrimSuffix(val, "%"), 64)
		if err != nil {
			return arbitrary(prefix, val)
		}
		if !strings.HasSuffix(val, "%") {
			n *= 100
		}
		step := int(n + 0.5)
		if float64(step) == n && step >= 0 && step <= 100 && step%5 == 0 {
			return prefix + "-" + strconv.Itoa(step)
		}
		return arbitrary(prefix, val)
	}
}

func borderWidth(prefix string) formatter {
	table := map[string]string{
		"0": prefix + "-0", "0px": prefix + "-0",
		"1px": prefix, "2px": prefix + "-2", "4px": prefix + "-4", "8px": prefix + "-8",
	}
	return withArbitrary(table, prefix)
}

// propertyMap maps kebab-case CSS properties to their formatter.
var propertyMap = map[string]formatter{
	"padding":        spacing("p", false, false),
	"padding-top":    spacing("pt", false, false),
	"padding-right":  spacing("pr", false, false),
	"padding-bottom": spacing("pb", false, false),
	"padding-left":   spacing("pl", false, false),
	"padding-inline": spacing("px", false, false),
	"padding-block":  spacing("py", false, false),
	"margin":         spacing("m", true, true),
	"margin-top":     spacing("mt", true, true),
	"margin-right":   spacing("mr", true, true),
	"margin-bottom":  spacing("mb", true, true),
	"margin-left":    spacing("ml", true, true),
	"margin-inline":  spacing("mx", true, true),
	"margin-block":   spacing("my", true, true),
	"gap":            spacing("gap", false, false),
	"row-gap":        spacing("gap-y", false, false),
	"column-gap":     spacing("gap-x", false, false),
	"top":            spacing("top", true, true),
	"right":          spacing("right", true, true),
	"bottom":         spacing("bottom", true, true),
	"left":           spacing("left", true, true),
	"inset":          spacing("inset", true, true),

	"width":      size("w", "100vw"),
	"height":     size("h", "100vh"),
	"min-width":  size("min-w", "100vw"),
	"min-height": size("min-h", "100vh"),
	"max-width": withArbitrary(map[string]string{
		"none": "max-w-none", "100%": "max-w-full", "min-content": "max-w-min",
		"max-content": "max-w-max", "fit-content": "max-w-fit",
	}, "max-w"),
	"max-height": size("max-h", "100vh"),

	"display": keyword(map[string]string{
		"block": "block", "inline-block": "inline-block", "inline": "inline",
		"flex": "flex", "inline-flex": "inline-flex", "grid": "grid",
		"inline-grid": "inline-grid", "contents": "contents", "table": "table",
		"table-row": "table-row", "table-cell": "table-cell", "flow-root": "flow-root",
		"list-item": "list-item", "none": "hidden",
	}),
	"position": keyword(map[string]string{
		"static": "static", "fixed": "fixed", "absolute": "absolute",
		"relative": "relative", "sticky": "sticky",
	}),
	"flex-direction": keyword(map[string]string{
		"row": "flex-row", "row-reverse": "flex-row-reverse",
		"column": "flex-col", "column-reverse": "flex-col-reverse",
	}),
	"flex-wrap": keyword(map[string]string{
		"wrap": "flex-wrap", "wrap-reverse": "flex-wrap-reverse", "nowrap": "flex-nowrap",
	}),
	"flex": withArbitrary(map[string]string{
		"1 1 0%": "flex-1", "1": "flex-1", "1 1 auto": "flex-auto", "auto": "flex-auto",
		"0 1 auto": "flex-initial", "initial": "flex-initial", "none": "flex-none",
	}, "flex"),
	"flex-grow":   withArbitrary(map[string]string{"0": "grow-0", "1": "grow"}, "grow"),
	"flex-shrink": withArbitrary(map[string]string{"0": "shrink-0", "1": "shrink"}, "shrink"),
	"justify-content": keyword(map[string]string{
		"normal": "justify-normal", "flex-start": "justify-start", "start": "justify-start",
		"flex-end": "justify-end", "end": "justify-end", "center": "justify-center",
		"space-between": "justify-between", "space-around": "justify-around",
		"space-evenly": "justify-evenly", "stretch": "justify-stretch",
	}),
	"align-items": keyword(map[string]string{
		"flex-start": "items-start", "start": "items-start", "flex-end": "items-end",
		"end": "items-end", "center": "items-center", "baseline": "items-baseline",
		"stretch": "items-stretch",
	}),
	"align-self": keyword(map[string]string{
		"auto": "self-auto", "flex-start": "self-start", "flex-end": "self-end",
		"center": "self-center", "stretch": "self-stretch", "baseline": "self-baseline",
	}),
	"align-content": keyword(map[string]string{
		"center": "content-center", "flex-start": "content-start", "flex-end": "content-end",
		"space-between": "content-between", "space-around": "content-around",
		"space-evenly": "content-evenly",
	}),

	"font-size": func(val string) string {
		if cls, ok := fontSizes[val]; ok {
			return cls
		}
		return arbitrary("text", val)
	},
	"font-weight": keyword(map[string]string{
		"100": "font-thin", "200": "font-extralight", "300": "font-light",
		"400": "font-normal", "normal": "font-normal", "500": "font-medium",
		"600": "font-semibold", "700": "font-bold", "bold": "font-bold",
		"800": "font-extrabold", "900": "font-black",
	}),
	"font-style": keyword(map[string]string{"italic": "italic", "normal": "not-italic"}),
	"text-align": keyword(map[string]string{
		"left": "text-left", "center": "text-center", "right": "text-right",
		"justify": "text-justify", "start": "text-start", "end": "text-end",
	}),
	"text-decoration": keyword(map[string]string{
		"underline": "underline", "overline": "overline",
		"line-through": "line-through", "none": "no-underline",
	}),
	"text-decoration-line": keyword(map[string]string{
		"underline": "underline", "overline": "overline",
		"line-through": "line-through", "none": "no-underline",
	}),
	"text-transform": keyword(map[string]string{
		"uppercase": "uppercase", "lowercase": "lowercase",
		"capitalize": "capitalize", "none": "normal-case",
	}),
	"line-height": withArbitrary(map[string]string{
		"1": "leading-none", "1.25": "leading-tight", "1.375": "leading-snug",
		"1.5": "leading-normal", "1.625": "leading-relaxed", "2": "leading-loose",
	}, "leading"),
	"letter-spacing": withArbitrary(map[string]string{
		"-0.05em": "tracking-tighter", "-0.025em": "tracking-tight", "0": "tracking-normal",
		"0em": "tracking-normal", "0.025em": "tracking-wide", "0.05em": "tracking-wider",
		"0.1em": "tracking-widest",
	}, "tracking"),
	"white-space": keyword(map[string]string{
		"normal": "whitespace-normal", "nowrap": "whitespace-nowrap", "pre": "whitespace-pre",
		"pre-line": "whitespace-pre-line", "pre-wrap": "whitespace-pre-wrap",
		"break-spaces": "whitespace-break-spaces",
	}),

	"color":            colorFormatter("text"),
	"background-color": colorFormatter("bg"),
	"border-color":     colorFormatter("border"),
	"fill":             colorFormatter("fill"),
	"stroke":           colorFormatter("stroke"),
	"background": withArbitrary(map[string]string{
		"transparent": "bg-transparent", "currentColor": "bg-current", "none": "bg-none",
	}, "bg"),
	"background-image": withArbitrary(map[string]string{"none": "bg-none"}, "bg"),
	"background-size": withArbitrary(map[string]string{
		"auto": "bg-auto", "cover": "bg-cover", "contain": "bg-contain",
	}, "bg"),
	"background-position": keyword(map[string]string{
		"bottom": "bg-bottom", "center": "bg-center", "left": "bg-left",
		"left bottom": "bg-left-bottom", "left top": "bg-left-top", "right": "bg-right",
		"right bottom": "bg-right-bottom", "right top": "bg-right-top", "top": "bg-top",
	}),
	"background-repeat": keyword(map[string]string{
		"repeat": "bg-repeat", "no-repeat": "bg-no-repeat", "repeat-x": "bg-repeat-x",
		"repeat-y": "bg-repeat-y", "round": "bg-repeat-round", "space": "bg-repeat-space",
	}),

	"border-width":  borderWidth("border"),
	"border-top-width":    borderWidth("border-t"),
	"border-right-width":  borderWidth("border-r"),
	"border-bottom-width": borderWidth("border-b"),
	"border-left-width":   borderWidth("border-l"),
	"border-style": keyword(map[string]string{
		"solid": "border-solid", "dashed": "border-dashed", "dotted": "border-dotted",
		"double": "border-double", "hidden": "border-hidden", "none": "border-none",
	}),
	"border-radius": withArbitrary(borderRadii, "rounded"),

	"opacity": opacity("opacity"),
	"overflow": keyword(map[string]string{
		"auto": "overflow-auto", "hidden": "overflow-hidden", "clip": "overflow-clip",
		"visible": "overflow-visible", "scroll": "overflow-scroll",
	}),
	"overflow-x": keyword(map[string]string{
		"auto": "overflow-x-auto", "hidden": "overflow-x-hidden", "clip": "overflow-x-clip",
		"visible": "overflow-x-visible", "scroll": "overflow-x-scroll",
	}),
	"overflow-y": keyword(map[string]string{
		"auto": "overflow-y-auto", "hidden": "overflow-y-hidden", "clip": "overflow-y-clip",
		"visible": "overflow-y-visible", "scroll": "overflow-y-scroll",
	}),
	"z-index": withArbitrary(map[string]string{
		"0": "z-0", "10": "z-10", "20": "z-20", "30": "z-30", "40": "z-40", "50": "z-50",
		"auto": "z-auto",
	}, "z"),
	"visibility": keyword(map[string]string{
		"visible": "visible", "hidden": "invisible", "collapse": "collapse",
	}),
	"box-sizing": keyword(map[string]string{
		"border-box": "box-border", "content-box": "box-content",
	}),
	"object-fit": keyword(map[string]string{
		"contain": "object-contain", "cover": "object-cover", "fill": "object-fill",
		"none": "object-none", "scale-down": "object-scale-down",
	}),
	"cursor": func(val string) string {
		if strings.ContainsAny(val, "() ") {
			return arbitrary("cursor", val)
		}
		return "cursor-" + val
	},
	"box-shadow": withArbitrary(map[string]string{"none": "shadow-none"}, "shadow"),
}

// customFormatters map theme tokens (custom values) to utility classes.
var customFormatters = map[string]formatter{
	"color":            func(v string) string { return "text-" + v },
	"background-color": func(v string) string { return "bg-" + v },
	"border-color":     func(v string) string { return "border-" + v },
	"fill":             func(v string) string { return "fill-" + v },
	"stroke":           func(v string) string { return "stroke-" + v },
	"font-family":      func(v string) string { return "font-" + v },
}
