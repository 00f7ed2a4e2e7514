// Package eliza is the rule-based conversational responder.
//
// A Script (keywords, decomposition patterns, reassembly templates, word
// substitutions and synonym groups) is loaded from YAML and is immutable once
// loaded, so one Script is shared by every session. A Responder is created
// per conversation and carries the small amount of turn state the rules need:
// which reassembly template each decomposition used last, and a memory stack
// of deferred replies. A Responder must not be used from two goroutines at
// once; the bridge guarantees that by handling each connection sequentially.
//
// Pattern syntax:
//
//	*       matches zero or more words and captures them
//	@group  matches one word from a synonym group and captures it
//	word    matches itself
//
// A pattern prefixed with "$" stores its reply in memory instead of answering.
// Reassembly templates reference captures as (1), (2) ...; "goto key"
// continues matching with another keyword's rules.
package eliza
