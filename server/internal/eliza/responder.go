package eliza

import (
	"strconv"
	"strings"
)

// fallback is used only if the script's xnone rules yield nothing.
const fallback = "Please go on."

// Responder answers one conversation. It is not safe for concurrent use.
type Responder struct {
	script *Script
	next   map[*Decomp]int
	memory []string
}

// New returns a Responder for a fresh conversation.
func New(script *Script) *Responder {
	return &Responder{
		script: script,
		next:   make(map[*Decomp]int),
	}
}

// Respond returns the reply to a lower-cased utterance.
func (r *Responder) Respond(utterance string) string {
	for _, phrase := range splitPhrases(utterance) {
		words := substitute(strings.Fields(phrase), r.script.Pre)
		for _, k := range r.script.keysFor(words) {
			if out, ok := r.matchKey(words, k, 0); ok {
				return out
			}
		}
	}

	if n := len(r.memory); n > 0 {
		out := r.memory[0]
		r.memory = r.memory[1:]
		return out
	}
	if out, ok := r.matchKey(nil, r.script.byWord[noneKey], 0); ok {
		return out
	}
	return fallback
}

// matchKey tries each decomposition of k in order. depth bounds goto chains.
func (r *Responder) matchKey(words []string, k *Key, depth int) (string, bool) {
	if k == nil || depth > len(r.script.Keys) {
		return "", false
	}
	for _, d := range k.Decomps {
		var groups [][]string
		if !r.match(d.parts, words, &groups) {
			continue
		}
		tmpl := r.nextTemplate(d)

		if target, ok := strings.CutPrefix(tmpl, "goto "); ok {
			if out, ok := r.matchKey(words, r.script.byWord[strings.TrimSpace(target)], depth+1); ok {
				return out, true
			}
			continue
		}

		out := r.reassemble(tmpl, groups)
		if d.save {
			r.memory = append(r.memory, out)
			continue
		}
		return out, true
	}
	return "", false
}

// match reports whether words fit parts, appending one capture per * or @.
func (r *Responder) match(parts, words []string, groups *[][]string) bool {
	if len(parts) == 0 {
		return len(words) == 0
	}

	head := parts[0]
	if head == "*" {
		for i := len(words); i >= 0; i-- {
			*groups = append(*groups, words[:i])
			if r.match(parts[1:], words[i:], groups) {
				return true
			}
			*groups = (*groups)[:len(*groups)-1]
		}
		return false
	}

	if len(words) == 0 {
		return false
	}
	if strings.HasPrefix(head, "@") {
		if !r.script.inGroup(head[1:], words[0]) {
			return false
		}
		*groups = append(*groups, words[:1])
		if r.match(parts[1:], words[1:], groups) {
			return true
		}
		*groups = (*groups)[:len(*groups)-1]
		return false
	}
	if head != words[0] {
		return false
	}
	return r.match(parts[1:], words[1:], groups)
}

// nextTemplate rotates through d's templates, one step per use.
func (r *Responder) nextTemplate(d *Decomp) string {
	i := r.next[d]
	r.next[d] = (i + 1) % len(d.Reasmb)
	return d.Reasmb[i]
}

// reassemble fills (n) placeholders with post-substituted captures.
func (r *Responder) reassemble(tmpl string, groups [][]string) string {
	var b strings.Builder
	for {
		open := strings.Index(tmpl, "(")
		if open < 0 {
			b.WriteString(tmpl)
			break
		}
		end := strings.Index(tmpl[open:], ")")
		if end < 0 {
			b.WriteString(tmpl)
			break
		}
		end += open

		b.WriteString(tmpl[:open])
		n, err := strconv.Atoi(tmpl[open+1 : end])
		switch {
		case err != nil:
			b.WriteString(tmpl[open : end+1])
		case n >= 1 && n <= len(groups):
			b.WriteString(strings.Join(substitute(groups[n-1], r.script.Post), " "))
		}
		tmpl = tmpl[end+1:]
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// splitPhrases breaks text at sentence punctuation, dropping empty pieces.
func splitPhrases(text string) []string {
	pieces := strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case '.', ',', ';', '!', '?':
			return true
		}
		return false
	})
	out := pieces[:0]
	for _, p := range pieces {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// substitute replaces each word found in table. The input is not modified.
func substitute(words []string, table map[string]string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if repl, ok := table[w]; ok {
			out = append(out, strings.Fields(repl)...)
			continue
		}
		out = append(out, w)
	}
	return out
}
