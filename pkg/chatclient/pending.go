package chatclient

import "sync"

// pendingRequests 按 requestId 关联请求与响应；
// 连接断开时所有在途请求一律按失败处理
type pendingRequests struct {
	mu sync.Mutex
	m  map[string]chan bool
}

func newPendingRequests() *pendingRequests {
	return &pendingRequests{m: make(map[string]chan bool)}
}

func (p *pendingRequests) add(requestID string) chan bool {
	ch := make(chan bool, 1)
	p.mu.Lock()
	p.m[requestID] = ch
	p.mu.Unlock()
	return ch
}

func (p *pendingRequests) resolve(requestID string, ok bool) {
	p.mu.Lock()
	ch, found := p.m[requestID]
	if found {
		delete(p.m, requestID)
	}
	p.mu.Unlock()
	if found {
		ch <- ok
	}
}

func (p *pendingRequests) remove(requestID string) {
	p.mu.Lock()
	delete(p.m, requestID)
	p.mu.Unlock()
}

func (p *pendingRequests) failAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.m {
		delete(p.m, id)
		ch <- false
	}
}
