package adapter

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/reel-cli/internal/model"
)

const defaultCategory = "Menu"

var (
	headingRe  = regexp.MustCompile(`^#{1,6}\s+(.+?)\s*#*$`)
	priceRe    = regexp.MustCompile(`[$€£]\s?\d{1,4}(?:[.,]\d{1,2})?|\b\d{1,3}[.,]\d{2}\b`)
	imageRe    = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	linkRe     = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	bulletRe   = regexp.MustCompile(`^(?:[-*+]|\d+[.)])\s+`)
	tableSepRe = regexp.MustCompile(`^\|?\s*:?-{3,}`)
)

// ParseMenuMarkdown extracts priced items from page markdown. Headings become
// categories in page order; a line with a price becomes an item under the
// closest preceding heading. Lines without a price that directly follow an
// item are taken as its description.
func ParseMenuMarkdown(md string) []model.MenuCategory {
	var (
		cats    []model.MenuCategory
		current = -1
		last    *model.MenuItem
		seen    = map[string]bool{}
	)

	category := func(name string) int {
		for i := range cats {
			if sameName(cats[i].Name, name) {
				return i
			}
		}
		cats = append(cats, model.MenuCategory{Name: name})
		return len(cats) - 1
	}

	for _, raw := range strings.Split(md, "\n") {
		line := cleanMarkdownLine(raw)
		if line == "" || tableSepRe.MatchString(strings.TrimSpace(raw)) {
			last = nil
			continue
		}

		if m := headingRe.FindStringSubmatch(strings.TrimSpace(raw)); m != nil {
			name := cleanInline(m[1])
			if name != "" && !priceRe.MatchString(name) {
				current = category(name)
				last = nil
				continue
			}
		}

		item, ok := parseItemLine(line)
		if !ok {
			if last != nil && last.Description == "" && len(line) <= 300 {
				last.Description = line
			}
			continue
		}

		if current < 0 {
			current = category(defaultCategory)
		}
		key := nameKey(cats[current].Name) + "\x00" + nameKey(item.Name)
		if seen[key] {
			last = nil
			continue
		}
		seen[key] = true
		cats[current].Items = append(cats[current].Items, item)
		last = &cats[current].Items[len(cats[current].Items)-1]
	}

	out := cats[:0]
	for _, c := range cats {
		if len(c.Items) > 0 {
			out = append(out, c)
		}
	}
	return out
}

func parseItemLine(line string) (model.MenuItem, bool) {
	loc := priceRe.FindStringIndex(line)
	if loc == nil {
		return model.MenuItem{}, false
	}
	name := trimSeparators(line[:loc[0]])
	price := strings.TrimSpace(line[loc[0]:loc[1]])
	desc := trimSeparators(line[loc[1]:])
	if name == "" {
		// "$12 Margherita" ordering.
		name, desc = desc, ""
	}
	if name == "" || len(name) > 120 {
		return model.MenuItem{}, false
	}
	return model.MenuItem{Name: name, Price: price, Description: desc}, true
}

func cleanMarkdownLine(raw string) string {
	line := strings.TrimSpace(raw)
	if strings.HasPrefix(line, "|") {
		cells := strings.Split(strings.Trim(line, "|"), "|")
		parts := make([]string, 0, len(cells))
		for _, c := range cells {
			if c = strings.TrimSpace(c); c != "" {
				parts = append(parts, c)
			}
		}
		line = strings.Join(parts, " - ")
	}
	line = bulletRe.ReplaceAllString(line, "")
	return cleanInline(line)
}

func cleanInline(s string) string {
	s = imageRe.ReplaceAllString(s, "")
	s = linkRe.ReplaceAllString(s, "$1")
	s = strings.NewReplacer("**", "", "__", "", "`", "").Replace(s)
	s = strings.Trim(s, "*_ ")
	return strings.Join(strings.Fields(s), " ")
}

func trimSeparators(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "-–—:|.·… "))
}

// nameKey folds case and strips accents so "Crème Brûlée" and "creme brulee"
// compare equal.
func nameKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		out = s
	}
	return cases.Fold().String(out)
}

func sameName(a, b string) bool {
	return nameKey(a) == nameKey(b)
}

// MergeMenus combines two category lists. Categories and items are matched
// by nameKey; primary order wins and secondary only fills gaps.
func MergeMenus(primary, secondary []model.MenuCategory) []model.MenuCategory {
	out := (&model.MenuModel{Categories: primary}).Clone().Categories
	for _, sc := range secondary {
		idx := -1
		for i := range out {
			if sameName(out[i].Name, sc.Name) {
				idx = i
				break
			}
		}
		if idx < 0 {
			out = append(out, model.MenuCategory{Name: sc.Name, Items: append([]model.MenuItem(nil), sc.Items...)})
			continue
		}
		for _, si := range sc.Items {
			found := false
			for j := range out[idx].Items {
				it := &out[idx].Items[j]
				if !sameName(it.Name, si.Name) {
					continue
				}
				found = true
				if it.Price == "" {
					it.Price = si.Price
				}
				if it.Description == "" {
					it.Description = si.Description
				}
				break
			}
			if !found {
				out[idx].Items = append(out[idx].Items, si)
			}
		}
	}
	return out
}

func countItems(cats []model.MenuCategory) int {
	return (&model.MenuModel{Categories: cats}).ItemCount()
}
