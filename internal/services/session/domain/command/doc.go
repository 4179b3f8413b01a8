// Package command defines the command envelope and decision contract for the
// session write path.
//
// Commands express caller intent. Deciders evaluate them against replayed
// projection state and return a Decision: either an accepted outcome with the
// events to append, or typed rejections. The decision boundary keeps the
// journal free of rejected attempts and makes every state change replayable.
package command
