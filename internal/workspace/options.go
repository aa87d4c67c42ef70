package workspace

import (
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"
)

// ParseQuoteTokens splits raw into tokens the way a POSIX shell would, honoring single
// and double quotes and backslash escapes. '#' is an ordinary character, not a comment.
// An empty or blank string yields no tokens.
func ParseQuoteTokens(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	tokens, err := shellquote.Split(raw)
	if err != nil {
		return nil, fmt.Errorf("tokenizing %q: %w", raw, err)
	}
	return tokens, nil
}

// ParseOptions substitutes workspace placeholders in raw, tokenizes the result and
// splits every "-flag=value" token into "-flag" and "value" at the first '='.
// Tokens that do not start with '-' are left alone, so "a=b" stays one token.
func ParseOptions(root, raw string) ([]string, error) {
	expanded, err := ReplacePlaceholders(root, raw)
	if err != nil {
		return nil, err
	}
	tokens, err := ParseQuoteTokens(expanded)
	if err != nil {
		return nil, err
	}
	return SplitFlagValues(tokens), nil
}

// SplitFlagValues applies the "-flag=value" split of ParseOptions to already tokenized
// input. Order is preserved.
func SplitFlagValues(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if strings.HasPrefix(tok, "-") {
			if flag, value, ok := strings.Cut(tok, "="); ok {
				out = append(out, flag, value)
				continue
			}
		}
		out = append(out, tok)
	}
	return out
}
