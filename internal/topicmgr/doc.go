// Package topicmgr catalogues the event names livedash knows about.
//
// Wire topics are the socket events exchanged with the backend (user_online,
// dm, connect_user). Each has a direction relative to the client. Bus topics
// are the change notifications stores publish for views
// (presence.roster.changed, notify.feed.changed). Each names the component
// that owns it and must start with that component.
//
//	var UserOnline = topicmgr.DefineWire(topicmgr.TopicConfig{
//		Name:        "user_online",
//		Direction:   topicmgr.Inbound,
//		Description: "An identity came online",
//		Example:     `{"usertag":"bob"}`,
//	})
//
//	if err := topicmgr.Default().Register(UserOnline); err != nil {
//		return err
//	}
//
// `livedash events` prints the catalogue.
package topicmgr
