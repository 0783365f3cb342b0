// Package intent classifies a chat message into what the user wants the assistant to do.
package intent

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Kind is the classified purpose of a message.
type Kind string

const (
	KindGreeting  Kind = "greeting"
	KindSimilar   Kind = "similar"
	KindSelection Kind = "selection"
	KindCatalog   Kind = "catalog"
	KindChat      Kind = "chat"
)

// SelectLast is the Selection value for "the last one".
const SelectLast = -1

// maxGreetingWords bounds how long a message can be and still be a greeting.
const maxGreetingWords = 4

// Result is the classification of a message. Style and Type are catalog tags found in
// the text (empty when absent). Selection is the 1-based item number for KindSelection,
// or SelectLast.
type Result struct {
	Kind      Kind   `json:"kind"`
	Style     string `json:"style,omitempty"`
	Type      string `json:"type,omitempty"`
	Selection int    `json:"selection,omitempty"`
}

var (
	bareNumber    = regexp.MustCompile(`^#?\s*(\d{1,2})\s*[.!)]?$`)
	labeledNumber = regexp.MustCompile(`\b(?:number|option|item|no\.)\s*#?\s*(\d{1,2})\b|^(?:no\s*|#)(\d{1,2})\b`)
	ordinalAlone  = regexp.MustCompile(`^(?:the\s+)?(\w+)(?:\s+(?:one|option|item))?\s*[.!]?$`)
	ordinalPhrase = regexp.MustCompile(`\b(first|second|third|fourth|fifth|last|1st|2nd|3rd|4th|5th)\s+(?:one|option|item)\b`)
	wordPattern   = regexp.MustCompile(`[a-z0-9]+(?:-[a-z0-9]+)*`)
)

// fuzzyTypeWords are the type words that tolerate a typo, sorted for a stable match order.
var fuzzyTypeWords = func() []string {
	var out []string
	for w := range productTypes {
		if _, exact := exactOnlyTypes[w]; !exact && len(w) >= 4 {
			out = append(out, w)
		}
	}
	sort.Strings(out)
	return out
}()

// Classify returns the intent of text. hasImage reports whether the message carries an
// image; an image with no text asks for similar items.
func Classify(text string, hasImage bool) Result {
	norm := strings.ToLower(strings.Join(strings.Fields(text), " "))
	words := wordPattern.FindAllString(norm, -1)

	res := Result{Kind: KindChat}
	res.Style = findStyle(words)
	// A misspelled type only counts when the message already asks for products.
	res.Type = findType(words, res.Style != "" || containsPhrase(words, requestPhrases))

	switch {
	case norm == "" && hasImage:
		res.Kind = KindSimilar
	case selection(norm, &res):
		res.Kind = KindSelection
	case containsPhrase(words, similarPhrases):
		res.Kind = KindSimilar
	case res.Type != "" || (res.Style != "" && containsPhrase(words, requestPhrases)):
		res.Kind = KindCatalog
	case isGreeting(words):
		res.Kind = KindGreeting
	}
	return res
}

func selection(norm string, res *Result) bool {
	if m := bareNumber.FindStringSubmatch(norm); m != nil {
		return setSelection(m[1], res)
	}
	if m := labeledNumber.FindStringSubmatch(norm); m != nil {
		n := m[1]
		if n == "" {
			n = m[2]
		}
		return setSelection(n, res)
	}
	if m := ordinalAlone.FindStringSubmatch(norm); m != nil {
		if n, ok := ordinals[m[1]]; ok {
			res.Selection = n
			return true
		}
	}
	if m := ordinalPhrase.FindStringSubmatch(norm); m != nil {
		res.Selection = ordinals[m[1]]
		return true
	}
	return false
}

func setSelection(digits string, res *Result) bool {
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return false
	}
	res.Selection = n
	return true
}

// containsPhrase reports whether any phrase occurs in words on word boundaries.
func containsPhrase(words []string, phrases []string) bool {
	padded := " " + strings.Join(words, " ") + " "
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}

func findStyle(words []string) string {
	for i, w := range words {
		if s, ok := styles[w]; ok {
			return s
		}
		if w == "mid" && i+1 < len(words) && words[i+1] == "century" {
			return "mid-century"
		}
	}
	return ""
}

func findType(words []string, fuzzy bool) string {
	for _, w := range words {
		if t, ok := productTypes[w]; ok {
			return t
		}
	}
	if !fuzzy {
		return ""
	}
	for _, w := range words {
		if len([]rune(w)) < 4 {
			continue
		}
		if _, ok := commonWords[w]; ok {
			continue
		}
		for _, word := range fuzzyTypeWords {
			if withinOneEdit(w, word) {
				return productTypes[word]
			}
		}
	}
	return ""
}

func isGreeting(words []string) bool {
	if len(words) == 0 || len(words) > maxGreetingWords {
		return false
	}
	head := false
	for _, w := range words {
		if _, ok := greetingWords[w]; !ok {
			return false
		}
		if _, ok := greetingHeads[w]; ok {
			head = true
		}
	}
	return head
}
