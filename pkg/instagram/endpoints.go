package instagram

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// BaseURL is the base URL for Instagram
	BaseURL = "https://www.instagram.com"

	// ProfileEndpoint returns a profile together with its latest media
	ProfileEndpoint = "/api/v1/users/web_profile_info/"

	// WebAppID identifies requests as coming from the web app
	WebAppID = "936619743392459"

	// ProfilePageSize is how many media items the profile endpoint returns
	ProfilePageSize = 12
)

// ProfileURL constructs the URL for fetching a user's profile
func ProfileURL(baseURL, username string) string {
	params := url.Values{}
	params.Set("username", username)
	return fmt.Sprintf("%s%s?%s", strings.TrimRight(baseURL, "/"), ProfileEndpoint, params.Encode())
}

// PostURL constructs the public URL for a post
func PostURL(shortcode string) string {
	if shortcode == "" {
		return ""
	}
	return fmt.Sprintf("%s/p/%s/", BaseURL, shortcode)
}

// IsValidUsername checks if a username is valid according to Instagram rules
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 30 {
		return false
	}

	for _, char := range username {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '.' || char == '_') {
			return false
		}
	}

	return true
}

// SanitizeUsername strips a leading @, surrounding spaces and trailing slashes
func SanitizeUsername(username string) string {
	username = strings.TrimSpace(username)
	username = strings.TrimPrefix(username, "@")
	return strings.TrimRight(username, "/ ")
}
