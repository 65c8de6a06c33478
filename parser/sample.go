package parser

import "github.com/aluiziolira/go-linkcheck/models"

// Sample returns a small built-in link set on high-concurrency I/O, used
// when no input file is given.
func Sample() []models.Target {
	return []models.Target{
		{Section: "C10K and event loops", URL: "http://www.kegel.com/c10k.html", Description: "The C10K problem"},
		{Section: "C10K and event loops", URL: "https://man7.org/linux/man-pages/man7/epoll.7.html", Description: "epoll I/O event notification facility"},
		{Section: "C10K and event loops", URL: "https://www.nginx.com/blog/inside-nginx-how-we-designed-for-performance-scale/", Description: "Inside NGINX: designed for performance and scale"},
		{Section: "Runtimes", URL: "https://nodejs.org/en/learn/asynchronous-work/event-loop-timers-and-nexttick", Description: "The Node.js event loop"},
		{Section: "Runtimes", URL: "https://go.dev/blog/waza-talk", Description: "Concurrency is not parallelism"},
		{Section: "Runtimes", URL: "https://redis.io/docs/latest/develop/reference/clients/", Description: "Redis client handling and multiplexing"},
		{Section: "Kernel interfaces", URL: "https://kernel.dk/io_uring.pdf", Description: "Efficient IO with io_uring"},
		{Section: "Kernel interfaces", URL: "https://lwn.net/Articles/776703/", Description: "Ringing in a new asynchronous I/O API"},
	}
}
