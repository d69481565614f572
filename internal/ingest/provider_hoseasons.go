package ingest

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/david/holiday-watch/internal/models"
)

// HoseasonsParser reads server-rendered result cards. Each card carries the
// stay details as data attributes and the price as text.
type HoseasonsParser struct{}

func (p *HoseasonsParser) BuildSearchURL(baseURL string, intent models.SearchIntent) (string, error) {
	q := url.Values{}
	q.Set("arrival", intent.StayStartDate)
	q.Set("nights", strconv.Itoa(intent.Nights))
	q.Set("adults", strconv.Itoa(intent.Adults))
	q.Set("children", strconv.Itoa(intent.Children))
	if intent.Pets {
		q.Set("pets", "1")
	}
	if intent.MinBedrooms > 0 {
		q.Set("bedrooms", strconv.Itoa(intent.MinBedrooms))
	}
	if intent.Region != "" {
		q.Set("region", intent.Region)
	}
	if intent.AccommodationType != "" {
		q.Set("type", intent.AccommodationType)
	}
	if len(intent.ParkIDs) > 0 {
		q.Set("parks", strings.Join(intent.ParkIDs, ","))
	}
	return buildURL(baseURL, "/search", q)
}

func (p *HoseasonsParser) BuildOffersURL(baseURL string) string {
	u, err := buildURL(baseURL, "/deals", nil)
	if err != nil {
		return ""
	}
	return u
}

func (p *HoseasonsParser) WaitSelector() string { return ".property-card" }

func (p *HoseasonsParser) ParseSearchResults(html []byte, intent models.SearchIntent) ([]models.RawCandidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	var out []models.RawCandidate
	doc.Find(".property-card").Each(func(i int, s *goquery.Selection) {
		c := models.RawCandidate{
			ParkID:            strings.TrimSpace(s.AttrOr("data-park-id", "")),
			AccomTypeID:       strings.TrimSpace(s.AttrOr("data-accom-type", "")),
			AccommodationType: strings.ToLower(strings.TrimSpace(s.AttrOr("data-accom-type", ""))),
			PropertyName:      normalizeSpace(s.Find(".property-card__name").First().Text()),
			Availability:      parseAvailability(s.Find(".property-card__availability").First().Text()),
		}

		if day, err := ParseStayDate(s.AttrOr("data-arrival", "")); err == nil {
			c.StayStartDate = day
		}
		if n, err := ParseNights(s.AttrOr("data-nights", "")); err == nil {
			c.Nights = n
		}
		if price, err := ParsePrice(s.Find(".property-card__price").First().Text()); err == nil {
			c.PriceTotal = price
		}
		if v, ok := s.Attr("data-bedrooms"); ok {
			c.Bedrooms = parseBedrooms(v)
		}
		switch strings.ToLower(strings.TrimSpace(s.AttrOr("data-pets", ""))) {
		case "true", "yes", "1":
			c.PetsAllowed = boolPtr(true)
		case "false", "no", "0":
			c.PetsAllowed = boolPtr(false)
		}
		c.SourceURL = strings.TrimSpace(s.Find("a.property-card__link").First().AttrOr("href", ""))
		out = append(out, c)
	})
	return out, nil
}

func (p *HoseasonsParser) ParseOffers(html []byte) ([]models.Offer, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	var out []models.Offer
	doc.Find(".deal-card").Each(func(i int, s *goquery.Selection) {
		o := models.Offer{
			Title:           s.Find(".deal-card__title").First().Text(),
			Description:     s.Find(".deal-card__description").First().Text(),
			PromoCode:       s.Find(".deal-card__code").First().Text(),
			DiscountPercent: parsePercent(s.Find(".deal-card__saving").First().Text()),
			ValidUntil:      parseValidUntil(s.Find(".deal-card__expiry").First().Text()),
			URL:             strings.TrimSpace(s.Find("a").First().AttrOr("href", "")),
		}
		out = append(out, o)
	})
	return out, nil
}
