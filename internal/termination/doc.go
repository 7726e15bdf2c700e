// Package termination classifies a session as ongoing or terminal.
package termination
