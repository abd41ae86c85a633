package admin

import (
	"strings"

	"github.com/fatih/camelcase"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// verboseName splits a type name into lower case words: UserProfile => user profile.
// Abbreviations stay upper case: APIKey => API key.
func verboseName(typeName string) string {
	words := camelcase.Split(typeName)

	for i, w := range words {
		if strings.ToUpper(w) != w || len(w) == 1 {
			words[i] = strings.ToLower(w)
		}
	}

	return strings.Join(words, " ")
}

func pluralise(name string) string {
	switch {
	case name == "":
		return ""
	case strings.HasSuffix(name, "s"), strings.HasSuffix(name, "x"), strings.HasSuffix(name, "ch"):
		return name + "es"
	case strings.HasSuffix(name, "y") && len(name) > 1 && !strings.ContainsRune("aeiou", rune(name[len(name)-2])):
		return name[:len(name)-1] + "ies"
	default:
		return name + "s"
	}
}

func urlName(typeName string) string {
	return strings.ToLower(typeName)
}

// title makes the first letter upper case, as shown in the index: user profiles => User profiles.
func title(name string) string {
	first, rest, _ := strings.Cut(name, " ")
	if strings.ToUpper(first) == first {
		return name
	}

	first = cases.Title(language.English).String(first)
	if rest == "" {
		return first
	}

	return first + " " + rest
}
