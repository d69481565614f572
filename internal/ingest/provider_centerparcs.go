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

// CenterParcsParser reads the availability table. Arrival dates are long
// form ("Friday 4th July 2025") and lodge details share one cell.
type CenterParcsParser struct{}

func (p *CenterParcsParser) BuildSearchURL(baseURL string, intent models.SearchIntent) (string, error) {
	q := url.Values{}
	q.Set("arrivalDate", intent.StayStartDate)
	q.Set("nights", strconv.Itoa(intent.Nights))
	q.Set("adults", strconv.Itoa(intent.Adults))
	q.Set("children", strconv.Itoa(intent.Children))
	if intent.Pets {
		q.Set("dogs", "1")
	}
	if len(intent.ParkIDs) > 0 {
		q.Set("village", strings.Join(intent.ParkIDs, ","))
	}
	if intent.MinBedrooms > 0 {
		q.Set("minBedrooms", strconv.Itoa(intent.MinBedrooms))
	}
	return buildURL(baseURL, "/availability", q)
}

func (p *CenterParcsParser) BuildOffersURL(baseURL string) string {
	u, err := buildURL(baseURL, "/special-offers", nil)
	if err != nil {
		return ""
	}
	return u
}

func (p *CenterParcsParser) WaitSelector() string { return "table.availability" }

func (p *CenterParcsParser) ParseSearchResults(html []byte, intent models.SearchIntent) ([]models.RawCandidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	var out []models.RawCandidate
	doc.Find("table.availability tbody tr").Each(func(i int, row *goquery.Selection) {
		village := row.Find("td.village").First()
		lodge := row.Find("td.lodge").First()
		lodgeText := normalizeSpace(lodge.Text())

		c := models.RawCandidate{
			ParkID:       strings.TrimSpace(village.AttrOr("data-village-id", "")),
			AccomTypeID:  strings.TrimSpace(lodge.AttrOr("data-lodge-code", "")),
			PropertyName: normalizeSpace(village.Text() + " " + lodgeText),
			Bedrooms:     parseBedrooms(lodgeText),
			Availability: parseAvailability(row.Find("td.status").First().Text()),
		}
		if strings.Contains(strings.ToLower(lodgeText), "lodge") {
			c.AccommodationType = "lodge"
		} else if strings.Contains(strings.ToLower(lodgeText), "apartment") {
			c.AccommodationType = "apartment"
		}

		if day, err := ParseStayDate(row.Find("td.arrival").First().Text()); err == nil {
			c.StayStartDate = day
		}
		if n, err := ParseNights(nightsCell(row.Find("td.nights").First().Text())); err == nil {
			c.Nights = n
		}
		if price, err := ParsePrice(row.Find("td.price").First().Text()); err == nil {
			c.PriceTotal = price
		}
		if pets := row.Find("td.pets"); pets.Length() > 0 {
			c.PetsAllowed = parsePets(pets.Text())
		}
		c.SourceURL = strings.TrimSpace(row.Find("a").First().AttrOr("href", ""))
		out = append(out, c)
	})
	return out, nil
}

// nightsCell drops a leading break label such as "Mon-Fri" from "Mon-Fri 4 nights".
func nightsCell(text string) string {
	fields := strings.Fields(text)
	for i, f := range fields {
		if f != "" && f[0] >= '0' && f[0] <= '9' {
			return strings.Join(fields[i:], " ")
		}
	}
	return text
}

func (p *CenterParcsParser) ParseOffers(html []byte) ([]models.Offer, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	var out []models.Offer
	doc.Find(".offer").Each(func(i int, s *goquery.Selection) {
		expiry := s.Find("time").First()
		o := models.Offer{
			Title:           s.Find("h2").First().Text(),
			Description:     s.Find("p").First().Text(),
			PromoCode:       s.Find(".offer-code").First().Text(),
			DiscountPercent: parsePercent(s.Find(".offer-discount").First().Text()),
			ValidUntil:      parseValidUntil(expiry.AttrOr("datetime", expiry.Text())),
			URL:             strings.TrimSpace(s.Find("a").First().AttrOr("href", "")),
		}
		out = append(out, o)
	})
	return out, nil
}
