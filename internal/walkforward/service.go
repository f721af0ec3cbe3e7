package walkforward

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"marlin/internal/logger"
	"marlin/internal/market"
	"marlin/internal/store"
	"marlin/internal/store/model"
)

// JobStatus 是一次验证会话的生命周期。
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Job 是一次验证会话的快照。
type Job struct {
	ID        string    `json:"id"`
	Strategy  string    `json:"strategy"`
	Status    JobStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	Submitted time.Time `json:"submitted"`
	Finished  time.Time `json:"finished,omitzero"`
	Report    *Report   `json:"report,omitempty"`
}

// Service 异步执行滚动前推验证并保留会话快照。
// 快照在进程内维护, 周期明细落库。
type Service struct {
	data  market.LoadSpec
	store store.Store

	mu   sync.RWMutex
	jobs map[string]*Job
	wg   sync.WaitGroup
}

func NewService(data market.LoadSpec, st store.Store) *Service {
	return &Service{data: data, store: st, jobs: make(map[string]*Job)}
}

// Start 提交一次验证, 返回会话 ID。
func (s *Service) Start(req Request) (string, error) {
	if req.Strategy == "" {
		return "", fmt.Errorf("strategy 不能为空")
	}
	if len(req.Grid) == 0 {
		return "", fmt.Errorf("参数网格不能为空")
	}
	id := uuid.NewString()
	job := &Job{ID: id, Strategy: req.Strategy, Status: JobPending, Submitted: time.Now()}
	s.mu.Lock()
	s.jobs[id] = job
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(id, req)
	return id, nil
}

func (s *Service) run(id string, req Request) {
	defer s.wg.Done()
	ctx := context.Background()
	s.update(id, func(j *Job) { j.Status = JobRunning })

	candles, err := market.LoadCandles(ctx, s.data)
	if err != nil {
		s.fail(id, err)
		return
	}
	report, err := Run(ctx, req, candles)
	if err != nil {
		// 提前终止时已完成的周期仍然入库并挂在快照上
		if report != nil {
			report.SessionID = id
			if s.store != nil {
				if perr := Persist(ctx, s.store.Cycles(), report); perr != nil {
					logger.Errorf("[walkforward] 会话 %s 部分周期入库失败: %v", id, perr)
				}
			}
			s.update(id, func(j *Job) { j.Report = report })
		}
		s.fail(id, err)
		return
	}
	report.SessionID = id
	if s.store != nil {
		if err := Persist(ctx, s.store.Cycles(), report); err != nil {
			s.fail(id, err)
			return
		}
	}
	s.update(id, func(j *Job) {
		j.Status = JobDone
		j.Finished = time.Now()
		j.Report = report
	})
	logger.Infof("[walkforward] 会话 %s 完成: %d 个周期", id, len(report.Cycles))
}

func (s *Service) fail(id string, err error) {
	logger.Errorf("[walkforward] 会话 %s 失败: %v", id, err)
	s.update(id, func(j *Job) {
		j.Status = JobFailed
		j.Error = err.Error()
		j.Finished = time.Now()
	})
}

func (s *Service) update(id string, fn func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		fn(j)
	}
}

// History 读取已落库的周期明细, 进程重启后仍可查询历史会话。
func (s *Service) History(ctx context.Context, sessionID string) ([]model.CycleModel, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.Cycles().ListBySession(ctx, sessionID)
}

// Snapshot 返回会话快照。
func (s *Service) Snapshot(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Jobs 返回全部会话快照。
func (s *Service) Jobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	return out
}

// Close 等待在途会话完成。
func (s *Service) Close() { s.wg.Wait() }
