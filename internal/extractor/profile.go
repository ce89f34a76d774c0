package extractor

import (
	"time"

	"github.com/JakeFAU/review-trends/internal/crawler"
)

// Profile holds the page markers the extractor looks for on one platform.
type Profile struct {
	Platform crawler.Platform
	// Title marks a loaded establishment page and holds its name.
	Title string
	// RevealTrigger is clicked to open the reviews panel.
	RevealTrigger string
	// RevealPanel must become visible after the trigger is clicked.
	RevealPanel string
	// NoTriggerMeansNoReviews treats a missing trigger as a confirmed zero.
	NoTriggerMeansNoReviews bool
	// Settle is waited after the panel opens so lazy content can render.
	Settle time.Duration
	// Count holds the total review count text.
	Count string
	// CountSuffix is stripped from the count text.
	CountSuffix string
	// Dates matches every per-review date element.
	Dates string
	// DatePlaceholder is shown instead of a date when none is available.
	DatePlaceholder string
}

// IFood returns the selector profile for ifood.com.br establishment pages.
func IFood() Profile {
	return Profile{
		Platform:        crawler.PlatformIFood,
		Title:           ".merchant-info__title",
		RevealTrigger:   ".restaurant-rating__rating-wrapper > a > button",
		RevealPanel:     ".drawer__content-container",
		Count:           "h3.rating-counter__total",
		CountSuffix:     " avaliações no total",
		Dates:           ".rating-evaluation-header__date",
		DatePlaceholder: "Não disponível",
	}
}

// Aiqfome returns the selector profile for aiqfome.com establishment pages.
func Aiqfome() Profile {
	return Profile{
		Platform:                crawler.PlatformAiqfome,
		Title:                   "#nome-restaurante-fix",
		RevealTrigger:           `a[data-target="#modalAvaliacoes"]`,
		RevealPanel:             "#modalAvaliacoes",
		NoTriggerMeansNoReviews: true,
		Settle:                  10 * time.Second,
		Count:                   "#avaliacoes_conteudo > div > div > div > h3",
		CountSuffix:             " avaliações",
		Dates:                   "span.small-font.font-main.dark-purple-text",
		DatePlaceholder:         "Não disponível",
	}
}

// DefaultProfiles returns the built-in profiles keyed by platform.
func DefaultProfiles() map[crawler.Platform]Profile {
	return map[crawler.Platform]Profile{
		crawler.PlatformIFood:   IFood(),
		crawler.PlatformAiqfome: Aiqfome(),
	}
}
