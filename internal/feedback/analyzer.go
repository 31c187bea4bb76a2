package feedback

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/khanglvm/casebank/internal/model"
)

const (
	// recentWindow separates recent from historical feedback.
	recentWindow = 7 * 24 * time.Hour

	// trendThreshold is the average difference that counts as a change.
	trendThreshold = 0.1

	// strongTrendThreshold is the weekly difference that counts as a strong change.
	strongTrendThreshold = 0.2

	// lowRating is the highest rating that counts as low quality.
	lowRating = 2.0

	// lowShareLimit is the share of low ratings that raises an opportunity.
	lowShareLimit = 0.2

	// neutralAverage is assumed for a period with no feedback.
	neutralAverage = model.DefaultQuality
)

// Trend labels.
const (
	TrendImproving         = "improving"
	TrendDeclining         = "declining"
	TrendStable            = "stable"
	TrendStronglyImproving = "strongly_improving"
	TrendStronglyDeclining = "strongly_declining"
	TrendInsufficientData  = "insufficient_data"
)

// Report summarizes the feedback log.
type Report struct {
	TotalFeedback int         `json:"totalFeedback"`
	AverageRating float64     `json:"averageRating"`
	Distribution  map[int]int `json:"distribution"`

	Quality       QualityTrend  `json:"quality"`
	Weekly        WeeklyTrend   `json:"weekly"`
	Opportunities []Opportunity `json:"opportunities,omitempty"`
}

// QualityTrend compares the last week with everything before it.
type QualityTrend struct {
	RecentWeekAvg   float64 `json:"recentWeekAvg"`
	HistoricalAvg   float64 `json:"historicalAvg"`
	Trend           string  `json:"trend"`
	RecentCount     int     `json:"recentCount"`
	ImprovementRate float64 `json:"improvementRate"`
}

// WeekAverage is the average rating of one Monday-based week.
type WeekAverage struct {
	WeekStart string  `json:"weekStart"`
	Average   float64 `json:"average"`
	Count     int     `json:"count"`
}

// WeeklyTrend is the per-week view of satisfaction.
type WeeklyTrend struct {
	Weeks     []WeekAverage `json:"weeks"`
	Direction string        `json:"direction"`
}

// Opportunity is a suggested improvement.
type Opportunity struct {
	Priority       string `json:"priority"`
	Issue          string `json:"issue"`
	Impact         string `json:"impact"`
	Recommendation string `json:"recommendation"`
}

// Analyze builds a report from records as of now.
func Analyze(records []model.FeedbackRecord, now time.Time) Report {
	report := Report{Distribution: make(map[int]int)}
	if len(records) == 0 {
		return report
	}

	var (
		sum, recentSum, olderSum float64
		recentN, olderN, lowN    int
	)
	cutoff := now.Add(-recentWindow)
	weeks := make(map[string][]float64)

	for _, r := range records {
		sum += r.Rating
		report.Distribution[int(math.Round(r.Rating))]++
		if r.Rating <= lowRating {
			lowN++
		}

		if r.CreatedAt.After(cutoff) {
			recentSum += r.Rating
			recentN++
		} else {
			olderSum += r.Rating
			olderN++
		}

		key := weekStart(r.CreatedAt).Format("2006-01-02")
		weeks[key] = append(weeks[key], r.Rating)
	}

	report.TotalFeedback = len(records)
	report.AverageRating = round2(sum / float64(len(records)))

	recentAvg, olderAvg := neutralAverage, neutralAverage
	if recentN > 0 {
		recentAvg = recentSum / float64(recentN)
	}
	if olderN > 0 {
		olderAvg = olderSum / float64(olderN)
	}
	report.Quality = QualityTrend{
		RecentWeekAvg:   round2(recentAvg),
		HistoricalAvg:   round2(olderAvg),
		Trend:           compare(recentAvg, olderAvg),
		RecentCount:     recentN,
		ImprovementRate: round2(recentAvg - olderAvg),
	}

	report.Weekly = weeklyTrend(weeks)

	if float64(lowN) > float64(len(records))*lowShareLimit {
		report.Opportunities = append(report.Opportunities, Opportunity{
			Priority:       "HIGH",
			Issue:          "High rate of low-quality ratings",
			Impact:         fmt.Sprintf("%d out of %d ratings are <= %.0f", lowN, len(records), lowRating),
			Recommendation: "Focus on improving base test case generation quality",
		})
	}

	return report
}

func compare(recent, older float64) string {
	switch {
	case recent > older+trendThreshold:
		return TrendImproving
	case recent < older-trendThreshold:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func weeklyTrend(weeks map[string][]float64) WeeklyTrend {
	keys := make([]string, 0, len(weeks))
	for k := range weeks {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	trend := WeeklyTrend{Weeks: make([]WeekAverage, 0, len(keys))}
	for _, k := range keys {
		var sum float64
		for _, v := range weeks[k] {
			sum += v
		}
		trend.Weeks = append(trend.Weeks, WeekAverage{
			WeekStart: k,
			Average:   round2(sum / float64(len(weeks[k]))),
			Count:     len(weeks[k]),
		})
	}

	trend.Direction = direction(trend.Weeks)
	return trend
}

// direction compares the average of the first half of the weeks with the second.
func direction(weeks []WeekAverage) string {
	if len(weeks) < 2 {
		return TrendInsufficientData
	}

	mid := len(weeks) / 2
	var first, second float64
	for _, w := range weeks[:mid] {
		first += w.Average
	}
	for _, w := range weeks[mid:] {
		second += w.Average
	}
	first /= float64(mid)
	second /= float64(len(weeks) - mid)

	switch {
	case second > first+strongTrendThreshold:
		return TrendStronglyImproving
	case second > first+trendThreshold:
		return TrendImproving
	case second < first-strongTrendThreshold:
		return TrendStronglyDeclining
	case second < first-trendThreshold:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// weekStart returns the Monday starting t's week, in UTC.
func weekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Write renders the report as plain text.
func (r Report) Write(w io.Writer) error {
	var b strings.Builder

	b.WriteString("FEEDBACK ANALYSIS REPORT\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")

	if r.TotalFeedback == 0 {
		b.WriteString("No feedback data available\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	b.WriteString("SUMMARY\n")
	fmt.Fprintf(&b, "Total Feedback Received: %d\n", r.TotalFeedback)
	fmt.Fprintf(&b, "Average Rating: %.2f/5.0\n\n", r.AverageRating)

	b.WriteString("Rating Distribution:\n")
	for rating := int(model.MaxRating); rating >= int(model.MinRating); rating-- {
		count := r.Distribution[rating]
		pct := float64(count) / float64(r.TotalFeedback) * 100
		fmt.Fprintf(&b, "  %d: %d (%.1f%%)\n", rating, count, pct)
	}
	b.WriteString("\n")

	b.WriteString("QUALITY TRENDS\n")
	fmt.Fprintf(&b, "Recent Week Average: %.2f/5.0\n", r.Quality.RecentWeekAvg)
	fmt.Fprintf(&b, "Historical Average: %.2f/5.0\n", r.Quality.HistoricalAvg)
	fmt.Fprintf(&b, "Trend: %s\n", strings.ToUpper(r.Quality.Trend))
	fmt.Fprintf(&b, "Improvement Rate: %+.2f\n\n", r.Quality.ImprovementRate)

	if len(r.Weekly.Weeks) > 0 {
		b.WriteString("WEEKLY AVERAGES\n")
		for _, wk := range r.Weekly.Weeks {
			fmt.Fprintf(&b, "  %s: %.2f (%d)\n", wk.WeekStart, wk.Average, wk.Count)
		}
		fmt.Fprintf(&b, "Direction: %s\n\n", r.Weekly.Direction)
	}

	if len(r.Opportunities) > 0 {
		b.WriteString("IMPROVEMENT OPPORTUNITIES\n")
		for i, o := range r.Opportunities {
			fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, o.Priority, o.Issue)
			fmt.Fprintf(&b, "   Impact: %s\n", o.Impact)
			fmt.Fprintf(&b, "   Recommendation: %s\n\n", o.Recommendation)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
