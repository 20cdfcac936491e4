package server

import (
	"encoding/xml"
	"fmt"
	"net/http"
)

// TwiML response document. Only the verbs this service speaks are modeled:
// Say, Gather (speech input), Dial and Hangup.
type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Say     []twimlSay   `xml:"Say,omitempty"`
	Gather  *twimlGather `xml:"Gather,omitempty"`
	Dial    string       `xml:"Dial,omitempty"`
	Hangup  *struct{}    `xml:"Hangup,omitempty"`
}

type twimlSay struct {
	Voice string `xml:"voice,attr,omitempty"`
	Text  string `xml:",chardata"`
}

type twimlGather struct {
	Input         string   `xml:"input,attr"`
	Action        string   `xml:"action,attr"`
	Method        string   `xml:"method,attr"`
	SpeechTimeout string   `xml:"speechTimeout,attr"`
	Say           twimlSay `xml:"Say"`
}

const twimlVoice = "Polly.Joanna"

// gatherResponse speaks prompt and listens for the caller's next utterance,
// posting the speech result back to action.
func gatherResponse(prompt, action string) *twimlResponse {
	return &twimlResponse{
		Gather: &twimlGather{
			Input:         "speech",
			Action:        action,
			Method:        http.MethodPost,
			SpeechTimeout: "auto",
			Say:           twimlSay{Voice: twimlVoice, Text: prompt},
		},
	}
}

// sayHangupResponse speaks prompt and ends the call.
func sayHangupResponse(prompt string) *twimlResponse {
	return &twimlResponse{
		Say:    []twimlSay{{Voice: twimlVoice, Text: prompt}},
		Hangup: &struct{}{},
	}
}

// sayDialResponse speaks prompt and transfers the call to number. Without a
// configured number it apologizes and hangs up.
func sayDialResponse(prompt, number string) *twimlResponse {
	if number == "" {
		return sayHangupResponse(prompt + " No staff line is configured right now, please call back later. Goodbye.")
	}
	return &twimlResponse{
		Say:  []twimlSay{{Voice: twimlVoice, Text: prompt}},
		Dial: number,
	}
}

func writeTwiML(w http.ResponseWriter, resp *twimlResponse) {
	body, err := xml.Marshal(resp)
	if err != nil {
		http.Error(w, "failed to render response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	fmt.Fprintf(w, "%s%s", xml.Header, body)
}
