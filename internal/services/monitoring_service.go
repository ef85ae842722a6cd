package services

import (
	"log"
	"math/big"
	"sync"
	"time"

	"gorm.io/gorm"

	"otc-backend/internal/desk"
	"otc-backend/internal/metrics"
)

// MonitoringService periodically refreshes Prometheus gauges from the
// database pool and the desk's treasury accounting.
type MonitoringService struct {
	db   *gorm.DB
	desk *desk.Desk

	checkInterval time.Duration
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// NewMonitoringService creates the monitoring service.
func NewMonitoringService(db *gorm.DB, d *desk.Desk) *MonitoringService {
	return &MonitoringService{
		db:            db,
		desk:          d,
		checkInterval: 60 * time.Second,
		stopCh:        make(chan struct{}),
	}
}

// Start launches the monitoring loops.
func (m *MonitoringService) Start() {
	log.Println("🚀 Starting monitoring service...")

	m.wg.Add(1)
	go m.monitorDatabaseConnection()

	m.wg.Add(1)
	go m.monitorDesk()

	log.Println("✅ Monitoring service started")
}

// Stop halts the monitoring loops.
func (m *MonitoringService) Stop() {
	log.Println("🛑 Stopping monitoring service...")
	close(m.stopCh)
	m.wg.Wait()
	log.Println("✅ Monitoring service stopped")
}

func (m *MonitoringService) monitorDatabaseConnection() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.checkDatabase()
		case <-m.stopCh:
			return
		}
	}
}

func (m *MonitoringService) checkDatabase() {
	if m.db == nil {
		metrics.DBConnectionStatus.Set(0)
		return
	}
	sqlDB, err := m.db.DB()
	if err != nil {
		metrics.DBConnectionStatus.Set(0)
		return
	}
	if err := sqlDB.Ping(); err != nil {
		metrics.DBConnectionStatus.Set(0)
		return
	}
	metrics.DBConnectionStatus.Set(1)
	metrics.DBConnectionActive.Set(float64(sqlDB.Stats().OpenConnections))
}

func (m *MonitoringService) monitorDesk() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.refreshDeskGauges()
		case <-m.stopCh:
			return
		}
	}
}

func (m *MonitoringService) refreshDeskGauges() {
	if m.desk == nil {
		return
	}
	metrics.OpenOffers.Set(float64(len(m.desk.OpenOfferIDs())))
	metrics.ReservedTokens.Set(bigToFloat(m.desk.ReservedTokens()))
	metrics.TreasuryTokens.Set(bigToFloat(m.desk.TreasuryBalance()))
}

func bigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
