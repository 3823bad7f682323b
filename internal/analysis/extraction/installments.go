package extraction

import (
	"regexp"
	"strconv"

	"github.com/zhouzirui/finchat/backend/internal/model/intake"
)

var installmentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(\d{1,2})\s*x\b`),
	regexp.MustCompile(`(?i)\b(\d{1,2})\s+(?:vezes|times|parcelas|installments|prestações|prestacoes|meses|months)\b`),
	regexp.MustCompile(`(?i)\bparcelad[oa]\s+em\s+(\d{1,2})\b`),
}

// DetectInstallments finds "N times" / "Nx" with 2 <= N <= 24.
func DetectInstallments(msg string) *intake.InstallmentSpec {
	for _, re := range installmentPatterns {
		m := re.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n >= intake.MinInstallments && n <= intake.MaxInstallments {
			return &intake.InstallmentSpec{Count: n}
		}
	}
	return nil
}
