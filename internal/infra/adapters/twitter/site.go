package twitter

import (
	"social-pipeline/internal/infra/browser"
	"social-pipeline/internal/infra/browser/session"
)

const (
	homeURL   = "https://x.com/home"
	loginURL  = "https://twitter.com/i/flow/login"
	searchURL = "https://x.com/search?q=%s&src=typed_query&f=live"
)

var (
	composeButton = browser.CSS(`[data-testid="SideNav_NewTweet_Button"]`)
	tweetTextarea = browser.CSS(`[data-testid="tweetTextarea_0"]`)
	tweetButton   = browser.CSS(`[data-testid="tweetButton"]`)

	usernameField = browser.CSS(`input[autocomplete="username"]`)
	passwordField = browser.CSS(`input[name="password"]`)
	// shown when X suspects unusual activity and asks for the handle again
	challengeField = browser.CSS(`input[data-testid="ocfEnterTextTextInput"]`)

	searchBoxes = []browser.Locator{
		browser.CSS(`[data-testid="SearchBox_Search_Input"]`),
		browser.CSS(`input[placeholder*="Search"]`),
		browser.CSS(`input[aria-label*="Search"]`),
		browser.CSS(`[data-testid="searchbox"]`),
	}

	results = []browser.Locator{
		browser.CSS(`[data-testid="cellInnerDiv"]`),
		browser.CSS(`[data-testid="tweet"]`),
		browser.CSS(`[data-testid="tweetText"]`),
		browser.CSS(`article[data-testid="tweet"]`),
	}

	likeButtons = []browser.Locator{
		browser.CSS(`[data-testid="like"]`),
		browser.CSS(`[aria-label*="Like"]`),
		browser.CSS(`[aria-label*="like"]`),
		browser.CSS(`div[role="button"][aria-label*="Like"]`),
		browser.CSS(`div[role="button"]`),
	}
)

func submitLadder(label string) []browser.Locator {
	return []browser.Locator{
		browser.XPath(`//button[@role="button"][.//span[text()="` + label + `"]]`),
		browser.XPath(`//div[@role="button"][.//span[text()="` + label + `"]]`),
		browser.Text(`div[role="button"], button`, label),
	}
}

// Site describes X for the session manager.
func Site() session.Site {
	next := append([]browser.Locator{browser.CSS(`[data-testid="LoginNextButton"]`)}, submitLadder("Next")...)
	logIn := append([]browser.Locator{browser.CSS(`[data-testid="LoginForm_Login_Button"]`)}, submitLadder("Log in")...)
	return session.Site{
		Name:     "twitter",
		HomeURL:  homeURL,
		LoginURL: loginURL,
		Markers: []browser.Locator{
			browser.CSS(`[data-testid="tweetTextarea_0"]`),
			browser.CSS(`[data-testid="SideNav_NewTweet_Button"]`),
			browser.CSS(`[data-testid="primaryColumn"]`),
			browser.CSS(`[data-testid="AppTabBar_Home_Link"]`),
			browser.CSS(`[data-testid="SideNav_AccountSwitcher_Button"]`),
		},
		LoginForm: []browser.Locator{
			browser.CSS(`input[name="session[username_or_email]"]`),
			usernameField,
		},
		Steps: []session.LoginStep{
			{Name: "username", Field: []browser.Locator{usernameField}, Value: username, Submit: next},
			{Name: "challenge", Field: []browser.Locator{challengeField}, Value: username, Submit: next, Optional: true},
			{Name: "password", Field: []browser.Locator{passwordField}, Value: password, Submit: logIn},
		},
	}
}

func username(a session.Account) string { return a.Username }
func password(a session.Account) string { return a.Password }
