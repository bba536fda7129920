package directory

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/teranos/jawala/directory/types"
	"github.com/teranos/jawala/internal/util"
)

// DirectoryName is the product name used in share messages
const DirectoryName = "जवळा व्यवसाय निर्देशिका"

// FormatPhoneNumber renders a 10-digit number as "+91 XXXXX XXXXX". Anything
// else is returned unchanged.
func FormatPhoneNumber(number string) string {
	if len(number) == 10 && isDigits(number) {
		return "+91 " + number[:5] + " " + number[5:]
	}
	return number
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var (
	slugSpaces  = regexp.MustCompile(`\s+`)
	slugInvalid = regexp.MustCompile(`[^\x{0900}-\x{097F}\w-]+`)
	slugDashes  = regexp.MustCompile(`-{2,}`)
)

// Slug makes a URL-friendly identifier from text. Devanagari letters are kept.
func Slug(text string) string {
	s := strings.ToLower(text)
	s = slugSpaces.ReplaceAllString(s, "-")
	s = slugInvalid.ReplaceAllString(s, "")
	s = slugDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// ShareText is the message shared for a business
func ShareText(b types.Business) string {
	lines := []string{
		"*" + b.ShopName + "*",
		"👤 " + b.OwnerName,
		"📞 " + FormatPhoneNumber(b.ContactNumber),
	}
	if addr := util.Deref(b.Address); addr != "" {
		lines = append(lines, "📍 "+addr)
	}
	if len(b.Services) > 0 {
		lines = append(lines, "🛠️ सेवा: "+strings.Join(b.Services, ", "))
	}
	lines = append(lines, "\n_~ "+DirectoryName+" द्वारे पाठवले ~_")
	return strings.Join(lines, "\n")
}

// ShareURL links to a business on the directory site at baseURL
func ShareURL(baseURL string, b types.Business) string {
	return fmt.Sprintf("%s?businessId=%s", baseURL, url.QueryEscape(b.ID))
}

// WhatsAppURL opens a chat with the business with a greeting prefilled
func WhatsAppURL(b types.Business) string {
	greeting := fmt.Sprintf(`नमस्कार, मी "%s" वरून आपला संपर्क घेतला आहे.`, DirectoryName)
	return "https://wa.me/91" + b.ContactNumber + "?text=" + url.QueryEscape(greeting)
}

// RatingSummary renders an aggregate as "4.3 ★ (12)", or "no ratings"
func RatingSummary(b types.Business) string {
	if b.RatingCount == 0 {
		return "no ratings"
	}
	return fmt.Sprintf("%.1f ★ (%d)", b.AvgRating, b.RatingCount)
}
