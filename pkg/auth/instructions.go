package auth

import (
	"fmt"
	"strings"
)

// ShowTokenGuide prints how to obtain the publishing credentials
func ShowTokenGuide() {
	fmt.Println(strings.Repeat("=", 72))
	fmt.Println("INSTAGRAM PUBLISHING CREDENTIALS")
	fmt.Println(strings.Repeat("=", 72))
	fmt.Println()
	fmt.Println("Posting needs a professional (Business or Creator) account and a")
	fmt.Println("long-lived access token with the instagram_business_content_publish")
	fmt.Println("permission.")
	fmt.Println()
	fmt.Println("STEP 1: Create an app at https://developers.facebook.com/apps and add")
	fmt.Println("        the Instagram product.")
	fmt.Println("STEP 2: Under 'API setup with Instagram login', add your account and")
	fmt.Println("        generate a token. Exchange it for a long-lived one (60 days).")
	fmt.Println("STEP 3: Note the account ID shown next to the token. It is also the")
	fmt.Println("        'user_id' returned by GET /me?fields=user_id.")
	fmt.Println()
	fmt.Println("Optional: reading source accounts works better with a browser session.")
	fmt.Println("Copy the 'sessionid' and 'csrftoken' cookies from instagram.com")
	fmt.Println("(Developer Tools > Application > Cookies).")
	fmt.Println()
	fmt.Println("These values give access to your account. They are stored in the")
	fmt.Println("system keychain or an encrypted file, never in plain text.")
	fmt.Println(strings.Repeat("=", 72))
	fmt.Println()
}

// ShowQuickGuide is the one-line version for the login prompt
func ShowQuickGuide() {
	fmt.Println("\nNeed: account ID and long-lived access token from the Meta app dashboard.")
	fmt.Println("   Type 'help' at the first prompt for detailed instructions")
	fmt.Println()
}
