package connection_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/unithub/unithub-ble/mocks"
	"github.com/unithub/unithub-ble/pkg/connection"
	"github.com/unithub/unithub-ble/pkg/connector"
	"github.com/unithub/unithub-ble/pkg/connector/fake"
	"github.com/unithub/unithub-ble/pkg/protocol"
)

type recorder struct {
	mu          sync.Mutex
	transitions []connection.Transition
}

func (r *recorder) handle(t connection.Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
}

func (r *recorder) states() []connection.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []connection.State
	for _, t := range r.transitions {
		out = append(out, t.To)
	}
	return out
}

var _ = Describe("Manager", func() {
	var (
		ctx       context.Context
		transport *fake.Transport
		rec       *recorder
		manager   *connection.Manager
	)

	BeforeEach(func() {
		ctx = context.Background()
		transport = fake.New(fake.UnitHub("AA:01", "UH_SN1"), fake.UnitHub("AA:02", "UH_SN2"))
		rec = &recorder{}
		manager = connection.New(transport, connection.WithStateHandler(rec.handle))
	})

	Describe("Scan", func() {
		It("returns an empty list after the timeout when nothing advertises", func() {
			empty := fake.New()
			m := connection.New(empty)
			start := time.Now()
			devices, err := m.Scan(ctx, 150*time.Millisecond)
			Expect(err).NotTo(HaveOccurred())
			Expect(devices).To(BeEmpty())
			Expect(time.Since(start)).To(BeNumerically(">=", 150*time.Millisecond))
		})

		It("lasts the full timeout even if the transport returns early", func() {
			ctrl := gomock.NewController(GinkgoT())
			mock := mocks.NewTransport(ctrl)
			mock.EXPECT().Scan(gomock.Any(), []string{"180A"}, gomock.Any()).Return(nil)
			m := connection.New(mock)
			start := time.Now()
			_, err := m.Scan(ctx, 100*time.Millisecond)
			Expect(err).NotTo(HaveOccurred())
			Expect(time.Since(start)).To(BeNumerically(">=", 100*time.Millisecond))
		})

		It("collapses repeated advertisements keeping the latest", func() {
			ctrl := gomock.NewController(GinkgoT())
			mock := mocks.NewTransport(ctrl)
			mock.EXPECT().Scan(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
				func(ctx context.Context, _ []string, handler func(connector.Advertisement)) error {
					handler(connector.Advertisement{DeviceID: "AA:01", LocalName: "UH_SN1", RSSI: fake.Int(-80), Services: []string{"180A"}})
					handler(connector.Advertisement{DeviceID: "AA:02", RSSI: fake.Int(-70), Services: []string{"180a"}})
					handler(connector.Advertisement{DeviceID: "AA:01", LocalName: "UH_SN1", RSSI: fake.Int(-42), Services: []string{"180A"}})
					<-ctx.Done()
					return nil
				})
			m := connection.New(mock)
			devices, err := m.Scan(ctx, 20*time.Millisecond)
			Expect(err).NotTo(HaveOccurred())
			Expect(devices).To(HaveLen(2))
			Expect(devices[0].ID).To(Equal("AA:01"))
			Expect(*devices[0].RSSI).To(Equal(-42))
			Expect(devices[0].FirstSeen.After(devices[0].LastSeen)).To(BeFalse())
			Expect(devices[1].Name).To(Equal("Unit-Hub Device"))
			Expect(devices[1].Services).To(Equal([]string{"180A"}))
		})

		It("discards partial results when the transport fails", func() {
			transport.ScanErr = errors.New("radio off")
			devices, err := manager.Scan(ctx, time.Second)
			Expect(err).To(MatchError(protocol.ErrScanFailed))
			Expect(devices).To(BeNil())
			Expect(manager.State()).To(Equal(connection.StateIdle))
		})

		It("passes transport unavailability through", func() {
			transport.ScanErr = protocol.ErrTransportUnavailable
			_, err := manager.Scan(ctx, time.Second)
			Expect(err).To(MatchError(protocol.ErrTransportUnavailable))
			Expect(err).NotTo(MatchError(protocol.ErrScanFailed))
		})

		It("stops early on StopScan and returns what it saw", func() {
			done := make(chan struct{})
			var found int
			go func() {
				defer GinkgoRecover()
				defer close(done)
				devices, err := manager.Scan(ctx, time.Minute)
				Expect(err).NotTo(HaveOccurred())
				found = len(devices)
			}()
			Eventually(manager.State).Should(Equal(connection.StateScanning))
			manager.StopScan()
			Eventually(done).Should(BeClosed())
			Expect(found).To(Equal(2))
			Expect(rec.states()).To(Equal([]connection.State{connection.StateScanning, connection.StateIdle}))
		})

		It("rejects a second concurrent scan", func() {
			go func() {
				defer GinkgoRecover()
				_, _ = manager.Scan(ctx, time.Minute)
			}()
			Eventually(manager.State).Should(Equal(connection.StateScanning))
			_, err := manager.Scan(ctx, time.Second)
			Expect(err).To(MatchError(protocol.ErrBusy))
			manager.StopScan()
			Eventually(manager.State).Should(Equal(connection.StateIdle))
		})
	})

	Describe("Connect", func() {
		It("connects and discovers services", func() {
			Expect(manager.Connect(ctx, "AA:01")).To(Succeed())
			Expect(manager.State()).To(Equal(connection.StateConnected))
			d, ok := manager.Device()
			Expect(ok).To(BeTrue())
			Expect(d.ID).To(Equal("AA:01"))
			Expect(rec.states()).To(Equal([]connection.State{connection.StateConnecting, connection.StateConnected}))

			err := manager.Do(ctx, func(l *connection.Link) error {
				Expect(l.MTU()).To(Equal(247))
				Expect(l.HasService(protocol.ServiceLoRaWAN)).To(BeTrue())
				Expect(l.HasCharacteristic(protocol.ServiceMeasurementDurations, protocol.CharGasDuration)).To(BeTrue())
				Expect(l.HasCharacteristic(protocol.ServiceDeviceInformation, protocol.CharIEEECertData)).To(BeFalse())
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("cancels an active scan first", func() {
			scanDone := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(scanDone)
				_, err := manager.Scan(ctx, time.Minute)
				Expect(err).NotTo(HaveOccurred())
			}()
			Eventually(manager.State).Should(Equal(connection.StateScanning))
			Expect(manager.Connect(ctx, "AA:01")).To(Succeed())
			Eventually(scanDone).Should(BeClosed())
			d, _ := manager.Device()
			Expect(d.Name).To(Equal("UH_SN1"))
		})

		It("tears down the existing connection before connecting elsewhere", func() {
			Expect(manager.Connect(ctx, "AA:01")).To(Succeed())
			Expect(manager.Connect(ctx, "AA:02")).To(Succeed())
			Expect(transport.LiveConnections()).To(Equal(1))
			d, _ := manager.Device()
			Expect(d.ID).To(Equal("AA:02"))
			_, connects, disconnects := transport.Counts()
			Expect(connects).To(Equal(2))
			Expect(disconnects).To(Equal(1))
		})

		It("is a no-op when already connected to the same device", func() {
			Expect(manager.Connect(ctx, "AA:01")).To(Succeed())
			Expect(manager.Connect(ctx, "AA:01")).To(Succeed())
			_, connects, _ := transport.Counts()
			Expect(connects).To(Equal(1))
			Expect(transport.LiveConnections()).To(Equal(1))
		})

		It("fails without holding a link when the connect times out", func() {
			transport.ConnectDelay = time.Second
			m := connection.New(transport, connection.WithConnectTimeout(20*time.Millisecond), connection.WithStateHandler(rec.handle))
			err := m.Connect(ctx, "AA:01")
			Expect(err).To(MatchError(protocol.ErrConnectFailed))
			Expect(protocol.ShouldRetry(err)).To(BeTrue())
			Expect(m.State()).To(Equal(connection.StateIdle))
			Expect(transport.LiveConnections()).To(Equal(0))
			Expect(rec.states()).To(Equal([]connection.State{
				connection.StateConnecting, connection.StateFailed, connection.StateIdle,
			}))
		})

		It("releases the link when discovery fails", func() {
			transport.DiscoverErr = errors.New("discovery timeout")
			err := manager.Connect(ctx, "AA:01")
			Expect(err).To(MatchError(protocol.ErrConnectFailed))
			Expect(transport.LiveConnections()).To(Equal(0))
			_, ok := manager.Device()
			Expect(ok).To(BeFalse())
		})

		It("does not retry a failed connection", func() {
			ctrl := gomock.NewController(GinkgoT())
			mock := mocks.NewTransport(ctrl)
			mock.EXPECT().Connect(gomock.Any(), "AA:01", connector.ConnectOptions{PreferredMTU: 517, Timeout: 15 * time.Second}).
				Return(nil, errors.New("rejected")).Times(1)
			m := connection.New(mock)
			Expect(m.Connect(ctx, "AA:01")).To(MatchError(protocol.ErrConnectFailed))
		})
	})

	Describe("Disconnect", func() {
		It("is a no-op without a connection", func() {
			Expect(manager.Disconnect(ctx)).To(Succeed())
			_, _, disconnects := transport.Counts()
			Expect(disconnects).To(Equal(0))
			Expect(rec.states()).To(BeEmpty())
		})

		It("swallows transport errors", func() {
			Expect(manager.Connect(ctx, "AA:01")).To(Succeed())
			transport.DisconnectErr = errors.New("already gone")
			Expect(manager.Disconnect(ctx)).To(Succeed())
			Expect(manager.State()).To(Equal(connection.StateIdle))
		})

		It("waits for the operation in flight", func() {
			Expect(manager.Connect(ctx, "AA:01")).To(Succeed())
			transport.OpDelay = 100 * time.Millisecond

			var readFinished atomic.Bool
			started := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				err := manager.Do(ctx, func(l *connection.Link) error {
					close(started)
					_, err := l.Read(ctx, protocol.ServiceMeasurementDurations, protocol.CharGasDuration)
					readFinished.Store(true)
					return err
				})
				Expect(err).NotTo(HaveOccurred())
			}()
			<-started
			Expect(manager.Disconnect(ctx)).To(Succeed())
			Expect(readFinished.Load()).To(BeTrue())
		})
	})

	Describe("Do", func() {
		It("fails with NotConnected without touching the transport", func() {
			ctrl := gomock.NewController(GinkgoT())
			mock := mocks.NewTransport(ctrl)
			m := connection.New(mock)
			called := false
			err := m.Do(ctx, func(*connection.Link) error {
				called = true
				return nil
			})
			Expect(err).To(MatchError(protocol.ErrNotConnected))
			Expect(called).To(BeFalse())
		})

		It("invalidates the link after returning", func() {
			Expect(manager.Connect(ctx, "AA:01")).To(Succeed())
			var kept *connection.Link
			Expect(manager.Do(ctx, func(l *connection.Link) error {
				kept = l
				return nil
			})).To(Succeed())
			_, err := kept.Read(ctx, protocol.ServiceMeasurementDurations, protocol.CharGasDuration)
			Expect(err).To(MatchError(protocol.ErrNotConnected))
		})
	})
})
