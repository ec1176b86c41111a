package scraper

import "time"

// Offering is a single product, service, or subscription extracted from a page.
type Offering struct {
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Attributes  []string `json:"attributes"`
	Pricing     string   `json:"pricing,omitempty"`
}

// PaymentInfo carries page-level payment details in the extraction schema.
type PaymentInfo struct {
	Methods   []string `json:"payment_methods"`
	Plans     []string `json:"payment_plans"`
	Tiers     []string `json:"pricing_tiers"`
	FreeOffer string   `json:"free_offers,omitempty"`
}

// ContactInfo holds whatever contact details a page mentions.
type ContactInfo struct {
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	ContactForm bool   `json:"contact_form_mention,omitempty"`
}

type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// PageExtraction is the fixed schema the analyzer produces for one page.
type PageExtraction struct {
	BusinessName     string            `json:"business_name,omitempty"`
	Tagline          string            `json:"tagline_slogan,omitempty"`
	ShortDescription string            `json:"short_description,omitempty"`
	Offerings        []Offering        `json:"offerings"`
	Payment          PaymentInfo       `json:"payment_information"`
	ValueProps       []string          `json:"value_propositions"`
	Audience         []string          `json:"target_audience"`
	SupportChannels  []string          `json:"support_channels"`
	Contact          ContactInfo       `json:"contact_info"`
	FAQs             []FAQ             `json:"faqs"`
	PageTopic        string            `json:"page_topic"`
	SourceURL        string            `json:"extracted_from_url"`
	DirectPricing    map[string]string `json:"direct_pricing,omitempty"`
}

// PaymentOptions is the merged payment view in the compiled profile.
type PaymentOptions struct {
	Methods   []string `json:"methods"`
	Plans     []string `json:"plans"`
	Tiers     []string `json:"tiers"`
	FreeOffer string   `json:"free_offer,omitempty"`
}

// BusinessProfile is the merged view of every analyzed page of a site.
type BusinessProfile struct {
	BusinessName string            `json:"business_name"`
	Tagline      string            `json:"tagline,omitempty"`
	Description  string            `json:"description,omitempty"`
	Contact      ContactInfo       `json:"contact_info"`
	Offerings    []Offering        `json:"offerings"`
	ValueProps   []string          `json:"value_props"`
	Audience     []string          `json:"audience"`
	Payment      PaymentOptions    `json:"payment_options"`
	Support      []string          `json:"support"`
	FAQs         []FAQ             `json:"faqs"`
	SocialLinks  map[string]string `json:"social_links"`
	SourceURLs   []string          `json:"source_urls"`
	BaseDomain   string            `json:"base_domain"`
	BusinessType string            `json:"business_type,omitempty"`
	DirectPrices map[string]string `json:"course_prices"`
}

// Metadata describes a completed crawl session.
type Metadata struct {
	URL              string    `json:"url"`
	BaseDomain       string    `json:"base_domain"`
	PagesScraped     int       `json:"pages_scraped"`
	PagesAnalyzed    int       `json:"pages_analyzed"`
	EarlyTermination bool      `json:"early_termination"`
	ScrapeTime       time.Time `json:"scrape_time"`
	ProcessingTime   float64   `json:"processing_time_seconds"`
	Filename         string    `json:"filename,omitempty"`
}

// Result is the artifact a crawl session produces.
type Result struct {
	Metadata Metadata         `json:"scrape_metadata"`
	Profile  *BusinessProfile `json:"business_profile"`
}
