package main

import (
	"fmt"

	"story-player/internal/models"
)

func (a *app) renderSegment(seg models.CheckpointSegment) {
	fmt.Fprintf(a.out, "\n[%d] %s\n", seg.CheckpointIndex, seg.Text)
}

// renderSession печатает всю историю: линейную целиком, интерактивную по журналу.
func (a *app) renderSession(sess *models.Session) {
	if sess == nil {
		return
	}
	if !sess.IsInteractive() {
		for _, seg := range sess.Segments {
			a.renderSegment(seg)
		}
		return
	}
	for _, entry := range sess.Interactive.History {
		a.renderEntry(entry)
	}
	if sess.ReachedFinal {
		a.renderEnding(sess)
	}
}

func (a *app) renderEntry(entry models.HistoryEntry) {
	if entry.ChosenOption != "" {
		fmt.Fprintf(a.out, "\n> %s\n", entry.ChosenOption)
	}
	if entry.Transition != nil && entry.Transition.Text != "" {
		fmt.Fprintf(a.out, "%s\n", entry.Transition.Text)
	}
	a.renderSegment(entry.Segment)
}

// renderLastStep печатает последний шаг журнала после выбора.
func (a *app) renderLastStep(sess *models.Session) {
	if sess == nil || !sess.IsInteractive() || len(sess.Interactive.History) == 0 {
		return
	}
	h := sess.Interactive.History
	a.renderEntry(h[len(h)-1])
}

func (a *app) renderOptions(sess *models.Session) {
	fmt.Fprintln(a.out)
	for _, opt := range sess.Interactive.NextOptions {
		fmt.Fprintf(a.out, "  %s) %s\n", opt.ID, opt.Label)
	}
}

func (a *app) renderEnding(sess *models.Session) {
	if sess == nil {
		return
	}
	fmt.Fprintln(a.out, "\nThe end.")
	if sess.EndingReflection != "" {
		fmt.Fprintf(a.out, "%s\n", sess.EndingReflection)
	}
}
