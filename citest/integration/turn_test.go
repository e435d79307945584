package integration_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/turnwire/turnwire/citest/testutil"
	"github.com/turnwire/turnwire/pkg/types"
)

const stateTimeout = 5 * time.Second

var _ = Describe("Turn lifecycle", func() {
	var sessionID string

	BeforeEach(func() {
		var err error
		sessionID, err = client.CreateSession()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		client.DeleteSession(sessionID)
	})

	Describe("a plain text turn", func() {
		It("accumulates the streamed chunks in order", func() {
			requestID, err := client.Send(sessionID, "please say hello")
			Expect(err).NotTo(HaveOccurred())
			Expect(requestID).NotTo(BeEmpty())

			s, err := client.WaitForState(sessionID, types.StateComplete, stateTimeout)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Context.Text).To(Equal("Hello, World!"))
			Expect(s.Context.Completion).NotTo(BeNil())
			Expect(s.IsComplete).To(BeTrue())
			Expect(s.IsLoading).To(BeFalse())
			Expect(s.Context.Error).To(BeNil())
		})
	})

	Describe("a turn with concurrent tools", func() {
		It("tracks every execution to completion", func() {
			_, err := client.Send(sessionID, "research this topic")
			Expect(err).NotTo(HaveOccurred())

			s, err := client.WaitForState(sessionID, types.StateComplete, stateTimeout)
			Expect(err).NotTo(HaveOccurred())

			Expect(s.Context.Reasoning).To(Equal("Let me look that up. "))
			Expect(s.Context.Text).To(Equal("Here is what I found."))
			Expect(s.Context.Tools).To(HaveLen(2))
			Expect(types.AggregateToolStatus(s.Context.Tools)).To(Equal(types.ToolComplete))
			Expect(types.TotalToolDuration(s.Context.Tools)).To(Equal(int64(65)))

			Expect(s.Context.Completion.TotalTokens).To(HaveValue(Equal(42)))
			Expect(s.Context.Completion.CostUSD).To(HaveValue(BeNumerically("~", 0.0004, 1e-9)))
		})
	})

	Describe("a failing turn", func() {
		It("preserves partial output alongside the error", func() {
			_, err := client.Send(sessionID, "simulate an outage")
			Expect(err).NotTo(HaveOccurred())

			s, err := client.WaitForState(sessionID, types.StateError, stateTimeout)
			Expect(err).NotTo(HaveOccurred())

			Expect(s.Context.Text).To(Equal("Partial answer before the "))
			Expect(s.Context.Error).NotTo(BeNil())
			Expect(s.Context.Error.Recoverable).To(BeTrue())
			Expect(s.Context.Completion).To(BeNil())
			Expect(s.IsError).To(BeTrue())
		})

		It("recovers on the next send", func() {
			_, err := client.Send(sessionID, "simulate an outage")
			Expect(err).NotTo(HaveOccurred())
			_, err = client.WaitForState(sessionID, types.StateError, stateTimeout)
			Expect(err).NotTo(HaveOccurred())

			_, err = client.Send(sessionID, "please say hello")
			Expect(err).NotTo(HaveOccurred())

			s, err := client.WaitForState(sessionID, types.StateComplete, stateTimeout)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Context.Text).To(Equal("Hello, World!"))
			Expect(s.Context.Error).To(BeNil())
		})
	})

	Describe("reset", func() {
		It("is a no-op while idle and applies after completion", func() {
			applied, err := client.Reset(sessionID)
			Expect(err).NotTo(HaveOccurred())
			Expect(applied).To(BeFalse())

			_, err = client.Send(sessionID, "please say hello")
			Expect(err).NotTo(HaveOccurred())
			_, err = client.WaitForState(sessionID, types.StateComplete, stateTimeout)
			Expect(err).NotTo(HaveOccurred())

			applied, err = client.Reset(sessionID)
			Expect(err).NotTo(HaveOccurred())
			Expect(applied).To(BeTrue())

			s, err := client.GetSession(sessionID)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.State).To(Equal(types.StateIdle))
			Expect(s.Context.Text).To(BeEmpty())
			Expect(s.Context.Tools).To(BeEmpty())
		})
	})
})

var _ = Describe("Concurrent sessions", func() {
	It("keeps sessions fully independent", func() {
		first, err := client.CreateSession()
		Expect(err).NotTo(HaveOccurred())
		defer client.DeleteSession(first)
		second, err := client.CreateSession()
		Expect(err).NotTo(HaveOccurred())
		defer client.DeleteSession(second)

		_, err = client.Send(first, "please say hello")
		Expect(err).NotTo(HaveOccurred())
		_, err = client.Send(second, "simulate an outage")
		Expect(err).NotTo(HaveOccurred())

		s1, err := client.WaitForState(first, types.StateComplete, stateTimeout)
		Expect(err).NotTo(HaveOccurred())
		s2, err := client.WaitForState(second, types.StateError, stateTimeout)
		Expect(err).NotTo(HaveOccurred())

		Expect(s1.Context.Text).To(Equal("Hello, World!"))
		Expect(s2.Context.Error).NotTo(BeNil())
	})
})

var _ = Describe("Event feed", func() {
	It("relays a turn's envelopes in order", func() {
		sessionID, err := client.CreateSession()
		Expect(err).NotTo(HaveOccurred())
		defer client.DeleteSession(sessionID)

		feed, err := testutil.OpenFeed(context.Background(), testServer.BaseURL, "/api/events")
		Expect(err).NotTo(HaveOccurred())
		defer feed.Close()

		requestID, err := client.Send(sessionID, "please say hello")
		Expect(err).NotTo(HaveOccurred())

		var text string
		var sawComplete bool
		deadline := time.After(stateTimeout)
	loop:
		for {
			select {
			case env := <-feed.Envelopes:
				if env.RequestID != requestID {
					continue
				}
				Expect(env.SessionID).To(Equal(sessionID))
				switch ev := env.Event.(type) {
				case *types.TextEvent:
					text += ev.Content
				case *types.CompleteEvent:
					sawComplete = true
					break loop
				}
			case <-deadline:
				Fail("timed out waiting for the turn on the feed")
			}
		}

		Expect(text).To(Equal("Hello, World!"))
		Expect(sawComplete).To(BeTrue())
	})
})
