package gomanager

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// IsNormalizedPerPageMax returns the effective page size and whether perPage
// was accepted as is. A maxPerPage of zero or less leaves the size unbounded.
func IsNormalizedPerPageMax(perPage int, maxPerPage int) (int, bool) {
	if perPage <= 0 {
		return DefaultPerPage, false
	} else if maxPerPage > 0 && perPage > maxPerPage {
		return maxPerPage, false
	}

	return perPage, true
}

func NormalizePerPageMax(perPage int, maxPerPage int) int {
	ret, _ := IsNormalizedPerPageMax(perPage, maxPerPage)
	return ret
}

func NormalizePerPage(perPage int) int {
	return NormalizePerPageMax(perPage, MaxPerPage)
}

// NormalizePage treats pages before the first one as the first page.
func NormalizePage(page int) int {
	if page < 1 {
		return 1
	}

	return page
}
