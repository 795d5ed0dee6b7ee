package caption

import (
	"hash/fnv"

	"catbot/pkg/models"
)

var videoTemplates = []string{
	"🎬 This cat is pure entertainment! 😹\n\n#catsofinstagram #funnycats #reels #viral #cutecats",
	"😻 Can't stop watching this! 🔄\n\n#catreel #funnypets #catsofinstagram #viral #cute",
	"🐱 When cats are this adorable... 💕\n\n#cutecats #catsofinstagram #reels #adorable #pets",
	"😸 This made my day! 🌟\n\n#happycats #funnycats #catsofinstagram #viral #joy",
	"🎥 Cat content that hits different! ✨\n\n#catvideo #funnypets #catsofinstagram #trending",
}

var imageTemplates = []string{
	"😻 Adorable cat moment! 🐾\n\n#catsofinstagram #cute #kitty #meow #catlife #feline #pets",
	"🐱 This little furball has my heart! ❤️\n\n#cats #cute #kitty #catlovers #feline #pets #adorable",
	"😸 Purrfection captured! 📸\n\n#catsofinstagram #cats #kitty #cute #catlife #feline #meow",
}

const (
	videoHashtags = "#catsofinstagram #cutecat #funnycats #reels #viral"
	imageHashtags = "#catsofinstagram #cute #kitty #meow"
)

// Fallback returns the template caption for a media item. The same id
// always gets the same caption.
func Fallback(mediaID string, mediaType models.MediaType) string {
	templates := imageTemplates
	if mediaType == models.MediaTypeVideo {
		templates = videoTemplates
	}
	h := fnv.New32a()
	h.Write([]byte(mediaID))
	return templates[h.Sum32()%uint32(len(templates))]
}

func defaultHashtags(mediaType models.MediaType) string {
	if mediaType == models.MediaTypeVideo {
		return videoHashtags
	}
	return imageHashtags
}
