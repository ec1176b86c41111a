package scraper

import (
	"net/url"
	"sort"
	"strings"
)

// CompileProfile merges per-page extractions into a single business profile.
// The homepage extraction seeds the scalar fields, later pages fill gaps, and
// list fields merge with case-insensitive dedup. Returns ErrNoPages when
// nothing was analyzed.
func CompileProfile(extractions []*PageExtraction, socialLinks map[string]string, baseDomain string) (*BusinessProfile, error) {
	if len(extractions) == 0 {
		return nil, ErrNoPages
	}

	ordered := homepageFirst(extractions, baseDomain)

	profile := &BusinessProfile{
		Offerings:    []Offering{},
		ValueProps:   []string{},
		Audience:     []string{},
		Support:      []string{},
		FAQs:         []FAQ{},
		SocialLinks:  map[string]string{},
		SourceURLs:   []string{},
		BaseDomain:   baseDomain,
		DirectPrices: map[string]string{},
		Payment: PaymentOptions{
			Methods: []string{},
			Plans:   []string{},
			Tiers:   []string{},
		},
	}

	seenURL := make(map[string]bool)
	for _, ex := range ordered {
		if ex.SourceURL != "" && !seenURL[ex.SourceURL] {
			seenURL[ex.SourceURL] = true
			profile.SourceURLs = append(profile.SourceURLs, ex.SourceURL)
		}

		profile.BusinessName = firstNonEmpty(profile.BusinessName, ex.BusinessName)
		profile.Tagline = firstNonEmpty(profile.Tagline, ex.Tagline)
		profile.Description = firstNonEmpty(profile.Description, ex.ShortDescription)

		profile.Contact.Email = firstNonEmpty(profile.Contact.Email, ex.Contact.Email)
		profile.Contact.Phone = firstNonEmpty(profile.Contact.Phone, ex.Contact.Phone)
		profile.Contact.Address = firstNonEmpty(profile.Contact.Address, ex.Contact.Address)
		profile.Contact.ContactForm = profile.Contact.ContactForm || ex.Contact.ContactForm

		for _, offering := range ex.Offerings {
			mergeOffering(profile, offering)
		}

		profile.ValueProps = mergeUnique(profile.ValueProps, ex.ValueProps)
		profile.Audience = mergeUnique(profile.Audience, ex.Audience)
		profile.Support = mergeUnique(profile.Support, ex.SupportChannels)
		profile.Payment.Methods = mergeUnique(profile.Payment.Methods, ex.Payment.Methods)
		profile.Payment.Plans = mergeUnique(profile.Payment.Plans, ex.Payment.Plans)
		profile.Payment.Tiers = mergeUnique(profile.Payment.Tiers, ex.Payment.Tiers)
		profile.Payment.FreeOffer = firstNonEmpty(profile.Payment.FreeOffer, ex.Payment.FreeOffer)

		for _, faq := range ex.FAQs {
			mergeFAQ(profile, faq)
		}

		for name, price := range ex.DirectPricing {
			if existing, ok := profile.DirectPrices[name]; !ok || len(price) > len(existing) {
				profile.DirectPrices[name] = price
			}
		}
	}

	for platform, link := range socialLinks {
		profile.SocialLinks[platform] = link
	}

	applyDirectPricing(profile)
	profile.BusinessType = inferBusinessType(profile.Offerings)
	if profile.BusinessName == "" {
		profile.BusinessName = nameFromDomain(baseDomain)
	}

	return profile, nil
}

// homepageFirst moves the base-domain root extraction to the front so its
// scalars win the first-non-empty merge.
func homepageFirst(extractions []*PageExtraction, baseDomain string) []*PageExtraction {
	ordered := make([]*PageExtraction, 0, len(extractions))
	var rest []*PageExtraction
	for _, ex := range extractions {
		if isHomepage(ex.SourceURL, baseDomain) {
			ordered = append(ordered, ex)
		} else {
			rest = append(rest, ex)
		}
	}
	return append(ordered, rest...)
}

func isHomepage(rawURL, baseDomain string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if !sameHost(parsed.Host, baseDomain) {
		return false
	}
	return parsed.Path == "" || parsed.Path == "/"
}

// mergeOffering adds an offering or folds it into an existing one with the
// same name, keeping the longer description and the union of attributes.
func mergeOffering(profile *BusinessProfile, offering Offering) {
	if strings.TrimSpace(offering.Name) == "" {
		return
	}
	key := strings.ToLower(strings.TrimSpace(offering.Name))
	for i := range profile.Offerings {
		if strings.ToLower(strings.TrimSpace(profile.Offerings[i].Name)) != key {
			continue
		}
		existing := &profile.Offerings[i]
		if len(offering.Description) > len(existing.Description) {
			existing.Description = offering.Description
		}
		existing.Attributes = mergeUnique(existing.Attributes, offering.Attributes)
		if existing.Pricing == "" {
			existing.Pricing = offering.Pricing
		}
		if existing.Type == "" {
			existing.Type = offering.Type
		}
		return
	}
	if offering.Attributes == nil {
		offering.Attributes = []string{}
	}
	profile.Offerings = append(profile.Offerings, offering)
}

func mergeFAQ(profile *BusinessProfile, faq FAQ) {
	if strings.TrimSpace(faq.Question) == "" {
		return
	}
	key := strings.ToLower(strings.TrimSpace(faq.Question))
	for _, existing := range profile.FAQs {
		if strings.ToLower(strings.TrimSpace(existing.Question)) == key {
			return
		}
	}
	profile.FAQs = append(profile.FAQs, faq)
}

// firstNonEmpty keeps the value already merged, taking the candidate only
// when nothing has claimed the field yet.
func firstNonEmpty(current, candidate string) string {
	if strings.TrimSpace(current) != "" {
		return current
	}
	return strings.TrimSpace(candidate)
}

// mergeUnique appends the items not already present, compared
// case-insensitively after trimming.
func mergeUnique(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, item := range existing {
		seen[strings.ToLower(strings.TrimSpace(item))] = true
	}
	for _, item := range incoming {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if seen[key] {
			continue
		}
		seen[key] = true
		existing = append(existing, trimmed)
	}
	return existing
}

// applyDirectPricing folds DOM-scraped prices into the offerings. A price key
// matches an offering when either name contains the other, or when a word
// longer than three characters from one appears in the other. Across every
// match the longest price string wins, so a detailed "$49.99/month" replaces
// a bare "$49" the analyzer already put on the offering. Keys are walked in
// sorted order to keep the result independent of map iteration.
func applyDirectPricing(profile *BusinessProfile) {
	if len(profile.DirectPrices) == 0 {
		return
	}
	keys := make([]string, 0, len(profile.DirectPrices))
	for key := range profile.DirectPrices {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for i := range profile.Offerings {
		offeringName := strings.ToLower(strings.TrimSpace(profile.Offerings[i].Name))
		if offeringName == "" {
			continue
		}
		best := profile.Offerings[i].Pricing
		for _, key := range keys {
			candidate := strings.ToLower(strings.TrimSpace(key))
			if candidate == "" || candidate == "unknown" {
				continue
			}
			if !pricingNamesMatch(offeringName, candidate) {
				continue
			}
			if price := profile.DirectPrices[key]; len(price) > len(best) {
				best = price
			}
		}
		profile.Offerings[i].Pricing = best
	}
}

func pricingNamesMatch(a, b string) bool {
	if a == b || strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	return anyWordIn(a, b) || anyWordIn(b, a)
}

// anyWordIn reports whether any word of words longer than three characters
// occurs as a substring of target.
func anyWordIn(words, target string) bool {
	for _, word := range strings.Fields(words) {
		if len(word) > 3 && strings.Contains(target, word) {
			return true
		}
	}
	return false
}

// inferBusinessType classifies the business by the mix of offering types.
// Only the literal "product" and "service" types count; offerings typed any
// other way (memberships, subscriptions) land in "other". With no offerings
// at all the type stays unset.
func inferBusinessType(offerings []Offering) string {
	if len(offerings) == 0 {
		return ""
	}
	var products, services int
	for _, offering := range offerings {
		switch strings.ToLower(offering.Type) {
		case "product":
			products++
		case "service":
			services++
		}
	}
	switch {
	case products > 0 && services > 0:
		return "hybrid"
	case products > 0:
		return "product-based"
	case services > 0:
		return "service-based"
	default:
		return "other"
	}
}

// nameFromDomain derives a display name from the base domain when no page
// named the business, e.g. "acme-labs.co.za" becomes "Acme Labs".
func nameFromDomain(baseDomain string) string {
	host := strings.TrimPrefix(strings.ToLower(baseDomain), "www.")
	if idx := strings.IndexByte(host, '.'); idx > 0 {
		host = host[:idx]
	}
	if host == "" {
		return "Unknown Business"
	}
	words := strings.FieldsFunc(host, func(r rune) bool {
		return r == '-' || r == '_'
	})
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
