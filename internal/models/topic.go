package models

// Topic is one of the fixed conversation subjects a user can search for.
type Topic string

const (
	TopicGeneral    Topic = "general"
	TopicBooks      Topic = "books"
	TopicMovies     Topic = "movies"
	TopicMusic      Topic = "music"
	TopicTechnology Topic = "technology"
	TopicTravel     Topic = "travel"
	TopicFood       Topic = "food"
	TopicSports     Topic = "sports"
	TopicArt        Topic = "art"
	TopicPhilosophy Topic = "philosophy"
)

var allTopics = []Topic{
	TopicGeneral, TopicBooks, TopicMovies, TopicMusic, TopicTechnology,
	TopicTravel, TopicFood, TopicSports, TopicArt, TopicPhilosophy,
}

// AllTopics returns the enumerated topics in display order.
func AllTopics() []Topic {
	out := make([]Topic, len(allTopics))
	copy(out, allTopics)
	return out
}

// Valid reports whether t is one of the enumerated topics.
func (t Topic) Valid() bool {
	for _, known := range allTopics {
		if t == known {
			return true
		}
	}
	return false
}
