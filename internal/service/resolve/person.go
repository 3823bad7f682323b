package resolve

import (
	"strings"

	"github.com/zhouzirui/finchat/backend/internal/analysis/text"
	"github.com/zhouzirui/finchat/backend/internal/model/intake"
	"github.com/zhouzirui/finchat/backend/internal/model/ledger"
)

const (
	scoreTokenOverlap = 1
	scoreNickname     = 2
	minPersonScore    = 1
)

// nicknames maps a common short form to the full first names it stands for.
var nicknames = map[string][]string{
	"bia":   {"beatriz"},
	"ju":    {"juliana", "julia", "julio"},
	"gabi":  {"gabriela", "gabrielle"},
	"rafa":  {"rafael", "rafaela"},
	"dani":  {"daniela", "daniel", "danielle"},
	"lu":    {"luciana", "luiza", "lucia", "lucas"},
	"fer":   {"fernanda", "fernando"},
	"nando": {"fernando"},
	"ze":    {"jose"},
	"chico": {"francisco"},
	"guto":  {"augusto", "gustavo"},
	"gu":    {"gustavo"},
	"mari":  {"mariana", "maria"},
	"carol": {"carolina", "caroline"},
	"manu":  {"manuela", "emanuel", "emanuela"},
	"leo":   {"leonardo", "leandro"},
	"duda":  {"eduarda", "eduardo"},
	"tati":  {"tatiana"},
	"paty":  {"patricia"},
	"vini":  {"vinicius"},
	"thi":   {"thiago"},
	"bob":   {"robert", "roberto"},
	"rob":   {"robert", "roberto"},
	"mike":  {"michael"},
	"bill":  {"william"},
	"will":  {"william"},
	"liz":   {"elizabeth"},
	"kate":  {"katherine", "catherine"},
	"alex":  {"alexandre", "alexander", "alexandra"},
	"nick":  {"nicholas", "nicolas"},
	"tom":   {"thomas", "tomas"},
}

// Person resolves a share target among candidates, excluding requesterID.
// An identifier starting with '@' is a handle: exact username, then
// substring. Anything else is a name: exact name or username short-circuits,
// then the best token overlap (nicknames weigh more) with a score of at
// least one.
func Person(identifier, requesterID string, candidates []ledger.User) (ledger.User, error) {
	pool := make([]ledger.User, 0, len(candidates))
	for _, u := range candidates {
		if u.ID != requesterID {
			pool = append(pool, u)
		}
	}

	id := strings.TrimSpace(identifier)
	if strings.HasPrefix(id, "@") {
		if u, ok := byHandle(strings.TrimPrefix(id, "@"), pool); ok {
			return u, nil
		}
		return ledger.User{}, intake.NewError(intake.ErrShareTargetNotFound, "", nil)
	}

	if u, ok := byName(id, pool); ok {
		return u, nil
	}
	return ledger.User{}, intake.NewError(intake.ErrShareTargetNotFound, "", nil)
}

func byHandle(handle string, pool []ledger.User) (ledger.User, bool) {
	want := text.Fold(handle)
	if want == "" {
		return ledger.User{}, false
	}
	for _, u := range pool {
		if text.Fold(u.Username) == want {
			return u, true
		}
	}
	for _, u := range pool {
		if have := text.Fold(u.Username); have != "" && strings.Contains(have, want) {
			return u, true
		}
	}
	return ledger.User{}, false
}

func byName(name string, pool []ledger.User) (ledger.User, bool) {
	want := text.Words(name)
	if len(want) == 0 {
		return ledger.User{}, false
	}
	joined := strings.Join(want, " ")

	for _, u := range pool {
		if strings.Join(text.Words(u.Name), " ") == joined || text.Fold(u.Username) == joined {
			return u, true
		}
	}

	best := -1
	bestScore := 0
	for i, u := range pool {
		if score := nameScore(want, text.Words(u.Name)); score > bestScore {
			best, bestScore = i, score
		}
	}
	if best >= 0 && bestScore >= minPersonScore {
		return pool[best], true
	}
	return ledger.User{}, false
}

func nameScore(want, have []string) int {
	score := 0
	for _, w := range want {
		for _, h := range have {
			if w == h {
				score += scoreTokenOverlap
				break
			}
			if isNickname(w, h) {
				score += scoreNickname
				break
			}
		}
	}
	return score
}

func isNickname(short, full string) bool {
	for _, name := range nicknames[short] {
		if name == full {
			return true
		}
	}
	return false
}
