package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		postsPublishedTotal,
		likesTotal,
		sessionLoggedIn,
		followupsTotal,
		extractionsTotal,
	)
}

var (
	postsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "social_posts_total",
			Help: "Publish attempts, labeled by platform and outcome.",
		},
		[]string{"platform", "outcome"},
	)

	likesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "social_likes_total",
			Help: "Posts liked during engagement, labeled by platform.",
		},
		[]string{"platform"},
	)

	sessionLoggedIn = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "browser_session_logged_in",
			Help: "1 when the browser session of an account is logged in.",
		},
		[]string{"platform", "account"},
	)

	followupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "social_followups_total",
			Help: "Follow-up posts, labeled by event ('scheduled', 'published', 'failed').",
		},
		[]string{"event"},
	)

	extractionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_extractions_total",
			Help: "Content extraction attempts, labeled by fetcher and outcome.",
		},
		[]string{"fetcher", "outcome"},
	)
)

func IncPost(platform string, ok bool) {
	postsPublishedTotal.WithLabelValues(norm(platform), outcome(ok)).Inc()
}

func AddLikes(platform string, n int) {
	if n > 0 {
		likesTotal.WithLabelValues(norm(platform)).Add(float64(n))
	}
}

func SetSessionLoggedIn(platform, account string, loggedIn bool) {
	v := 0.0
	if loggedIn {
		v = 1
	}
	sessionLoggedIn.WithLabelValues(norm(platform), norm(account)).Set(v)
}

func IncFollowup(event string) {
	followupsTotal.WithLabelValues(norm(event)).Inc()
}

func IncExtraction(fetcher string, ok bool) {
	extractionsTotal.WithLabelValues(norm(fetcher), outcome(ok)).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
